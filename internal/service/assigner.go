package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"team-roles/internal/domain"
)

// Assigner calcula la asignacion postulante-rol que maximiza el puntaje total.
// Es sincronico y no hace I/O.
type Assigner struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewAssigner(logger *zap.Logger) *Assigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{logger: logger, now: time.Now}
}

// AssignRoles convierte puntajes en costos (100 - score) y resuelve con el algoritmo hungaro.
func (a *Assigner) AssignRoles(team domain.Team, roles []domain.RoleDefinition, matrix domain.ScoreMatrix) (domain.TeamAssignment, error) {
	size := team.Size()
	if size == 0 {
		return domain.TeamAssignment{}, fmt.Errorf("%w: team %s has no members", ErrInvalidAssignment, team.ID)
	}
	if len(roles) < size {
		return domain.TeamAssignment{}, fmt.Errorf("%w: %d roles for %d members", ErrNotEnoughRoles, len(roles), size)
	}
	if err := ValidateScoreMatrix(matrix.Scores, size, len(roles)); err != nil {
		return domain.TeamAssignment{}, err
	}

	cost := make([][]float64, size)
	for i, row := range matrix.Scores {
		cost[i] = make([]float64, len(row))
		for j, score := range row {
			cost[i][j] = domain.MaxScore - score
		}
	}

	cols := hungarian(cost)
	if err := checkMatching(cols, size, len(roles)); err != nil {
		a.logger.Error("matching produced invalid result", zap.String("team_id", team.ID), zap.Error(err))
		return domain.TeamAssignment{}, err
	}

	result := domain.TeamAssignment{
		TeamID:      team.ID,
		Assignments: make([]domain.Assignment, size),
		GeneratedAt: a.now().UTC(),
	}
	for i, j := range cols {
		score := matrix.Scores[i][j]
		result.Assignments[i] = domain.Assignment{
			ApplicantID: team.Members[i].ID,
			RoleID:      roles[j].ID,
			Score:       score,
		}
		result.TotalScore += score
	}

	a.logger.Debug("roles assigned",
		zap.String("team_id", team.ID),
		zap.Float64("total_score", result.TotalScore),
	)
	return result, nil
}

func checkMatching(cols []int, rows, roleCount int) error {
	if len(cols) != rows {
		return fmt.Errorf("%w: expected %d pairs, got %d", ErrInvalidAssignment, rows, len(cols))
	}
	seen := make(map[int]struct{}, rows)
	for i, j := range cols {
		if j < 0 || j >= roleCount {
			return fmt.Errorf("%w: applicant %d got role index %d out of bounds", ErrInvalidAssignment, i, j)
		}
		if _, dup := seen[j]; dup {
			return fmt.Errorf("%w: role index %d assigned twice", ErrInvalidAssignment, j)
		}
		seen[j] = struct{}{}
	}
	return nil
}

// ValidateAssignment comprueba que la asignacion sea una biyeccion valida entre
// los miembros del equipo y un subconjunto de roles.
func (a *Assigner) ValidateAssignment(team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) error {
	if len(assignment.Assignments) != team.Size() {
		return fmt.Errorf("%w: expected %d pairs, got %d", ErrInvalidAssignment, team.Size(), len(assignment.Assignments))
	}
	applicants := make(map[string]struct{}, team.Size())
	assignedRoles := make(map[string]struct{}, team.Size())
	for _, pair := range assignment.Assignments {
		if _, ok := team.MemberByID(pair.ApplicantID); !ok {
			return fmt.Errorf("%w: applicant %s is not a team member", ErrInvalidAssignment, pair.ApplicantID)
		}
		if _, ok := domain.RoleByID(roles, pair.RoleID); !ok {
			return fmt.Errorf("%w: unknown role %s", ErrInvalidAssignment, pair.RoleID)
		}
		if _, dup := applicants[pair.ApplicantID]; dup {
			return fmt.Errorf("%w: applicant %s assigned twice", ErrInvalidAssignment, pair.ApplicantID)
		}
		if _, dup := assignedRoles[pair.RoleID]; dup {
			return fmt.Errorf("%w: role %s assigned twice", ErrInvalidAssignment, pair.RoleID)
		}
		if pair.Score < domain.MinScore || pair.Score > domain.MaxScore {
			return fmt.Errorf("%w: score %v out of range", ErrInvalidAssignment, pair.Score)
		}
		applicants[pair.ApplicantID] = struct{}{}
		assignedRoles[pair.RoleID] = struct{}{}
	}
	return nil
}

// ScoreBand es un rango fijo de la distribucion de puntajes.
type ScoreBand struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Count int    `json:"count"`
}

// AssignmentStats es una vista derivada de una asignacion.
type AssignmentStats struct {
	Pairs        int         `json:"pairs"`
	TotalScore   float64     `json:"total_score"`
	AverageScore float64     `json:"average_score"`
	MinScore     float64     `json:"min_score"`
	MaxScore     float64     `json:"max_score"`
	Distribution []ScoreBand `json:"distribution"`
}

func newScoreBands() []ScoreBand {
	return []ScoreBand{
		{Label: "90-100", Min: 90},
		{Label: "80-89", Min: 80},
		{Label: "70-79", Min: 70},
		{Label: "60-69", Min: 60},
		{Label: "50-59", Min: 50},
		{Label: "0-49", Min: 0},
	}
}

// GetAssignmentStats resume puntajes y distribucion en las seis bandas.
func (a *Assigner) GetAssignmentStats(assignment domain.TeamAssignment) AssignmentStats {
	stats := AssignmentStats{Distribution: newScoreBands()}
	for i, pair := range assignment.Assignments {
		stats.Pairs++
		stats.TotalScore += pair.Score
		if i == 0 || pair.Score < stats.MinScore {
			stats.MinScore = pair.Score
		}
		if i == 0 || pair.Score > stats.MaxScore {
			stats.MaxScore = pair.Score
		}
		for b := range stats.Distribution {
			if pair.Score >= float64(stats.Distribution[b].Min) {
				stats.Distribution[b].Count++
				break
			}
		}
	}
	if stats.Pairs > 0 {
		stats.AverageScore = stats.TotalScore / float64(stats.Pairs)
	}
	return stats
}

// AssignmentDetail une un par con los nombres del postulante y del rol.
type AssignmentDetail struct {
	ApplicantID     string  `json:"applicant_id"`
	ApplicantName   string  `json:"applicant_name"`
	RoleID          string  `json:"role_id"`
	RoleName        string  `json:"role_name"`
	RoleDescription string  `json:"role_description"`
	Score           float64 `json:"score"`
	Justification   string  `json:"justification,omitempty"`
}

// GetAssignmentDetails devuelve los pares enriquecidos, en el orden de la asignacion.
func (a *Assigner) GetAssignmentDetails(team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) []AssignmentDetail {
	details := make([]AssignmentDetail, 0, len(assignment.Assignments))
	for _, pair := range assignment.Assignments {
		d := AssignmentDetail{
			ApplicantID:   pair.ApplicantID,
			RoleID:        pair.RoleID,
			Score:         pair.Score,
			Justification: pair.Justification,
		}
		if m, ok := team.MemberByID(pair.ApplicantID); ok {
			d.ApplicantName = m.Name
		}
		if r, ok := domain.RoleByID(roles, pair.RoleID); ok {
			d.RoleName = r.Name
			d.RoleDescription = r.Description
		}
		details = append(details, d)
	}
	return details
}
