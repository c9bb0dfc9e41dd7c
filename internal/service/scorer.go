package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"team-roles/internal/domain"
	"team-roles/internal/llm"
	"team-roles/internal/metrics"
)

const scorerSystemPrompt = `You are an expert in team composition. You evaluate how well each participant fits each role.
Respond ONLY with a JSON array of arrays of numbers. No prose, no markdown.`

// ScorerConfig agrupa reintentos, batch y parametros del modelo para scoring.
type ScorerConfig struct {
	Retry       RetryPolicy
	Batch       BatchConfig
	Temperature float64
	MaxTokens   int
}

// DefaultScorerConfig devuelve la configuracion por defecto del scorer.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Retry:       DefaultRetryPolicy(),
		Batch:       DefaultBatchConfig(),
		Temperature: 0.3,
		MaxTokens:   2000,
	}
}

// Scorer obtiene del LLM la matriz postulante x rol de un equipo.
type Scorer struct {
	llmClient llm.LLMClient
	cfg       ScorerConfig
	logger    *zap.Logger
	metrics   *metrics.Pipeline
	now       func() time.Time
}

func NewScorer(llmClient llm.LLMClient, cfg ScorerConfig, logger *zap.Logger, m *metrics.Pipeline) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		llmClient: llmClient,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// ScoreTeam valida precondiciones, consulta al modelo con reintentos y valida la matriz.
func (s *Scorer) ScoreTeam(ctx context.Context, team domain.Team, roles []domain.RoleDefinition) (domain.ScoreMatrix, error) {
	if !team.IsComplete {
		return domain.ScoreMatrix{}, ErrTeamNotComplete
	}
	if team.Size() == 0 {
		return domain.ScoreMatrix{}, fmt.Errorf("%w: team %s has no members", ErrInvalidScoreMatrix, team.ID)
	}
	if len(roles) < team.Size() {
		return domain.ScoreMatrix{}, fmt.Errorf("%w: %d roles for %d members", ErrNotEnoughRoles, len(roles), team.Size())
	}

	req := llm.CompletionRequest{
		SystemPrompt: scorerSystemPrompt,
		UserPrompt:   BuildScoringPrompt(team, roles),
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
	}

	scores, err := withRetry(ctx, s.cfg.Retry, s.logger, "score_team", func(ctx context.Context) ([][]float64, error) {
		raw, err := s.llmClient.Complete(ctx, req)
		s.metrics.LLMCall("scoring", err)
		if err != nil {
			return nil, err
		}
		return ParseScoreMatrix(raw, team.Size(), len(roles))
	})
	if err != nil {
		s.logger.Error("team scoring failed", zap.String("team_id", team.ID), zap.Error(err))
		return domain.ScoreMatrix{}, err
	}

	return domain.ScoreMatrix{
		TeamID:      team.ID,
		Scores:      scores,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// TeamScoreResult es el resultado por equipo de ScoreTeamsBatch.
type TeamScoreResult struct {
	TeamID string
	Matrix domain.ScoreMatrix
	Err    error
}

// OK indica si el equipo obtuvo matriz.
func (r TeamScoreResult) OK() bool { return r.Err == nil }

type scoreJob struct {
	team  domain.Team
	roles []domain.RoleDefinition
}

// ScoreTeamsBatch puntua varios equipos por chunks. rolesPerTeam[i] corresponde a teams[i];
// si tiene un solo elemento se usa para todos. Nunca falla por errores parciales.
func (s *Scorer) ScoreTeamsBatch(ctx context.Context, teams []domain.Team, rolesPerTeam [][]domain.RoleDefinition) ([]TeamScoreResult, BatchSummary) {
	jobs := make([]scoreJob, len(teams))
	for i, t := range teams {
		jobs[i] = scoreJob{team: t, roles: rolesFor(rolesPerTeam, i)}
	}

	outcomes, summary := runChunked(ctx, s.cfg.Batch, jobs, func(ctx context.Context, j scoreJob) (domain.ScoreMatrix, error) {
		return s.ScoreTeam(ctx, j.team, j.roles)
	})

	results := make([]TeamScoreResult, len(teams))
	for i, o := range outcomes {
		results[i] = TeamScoreResult{TeamID: teams[i].ID, Matrix: o.value, Err: o.err}
	}
	s.logger.Info("batch scoring finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return results, summary
}

func rolesFor(rolesPerTeam [][]domain.RoleDefinition, i int) []domain.RoleDefinition {
	switch {
	case i < len(rolesPerTeam):
		return rolesPerTeam[i]
	case len(rolesPerTeam) == 1:
		return rolesPerTeam[0]
	default:
		return nil
	}
}

// BuildScoringPrompt arma el prompt con el perfil de cada postulante y cada rol.
func BuildScoringPrompt(team domain.Team, roles []domain.RoleDefinition) string {
	var b strings.Builder
	b.WriteString("Score how well each participant fits each role on a scale from 0 to 100.\n\n")

	b.WriteString("PARTICIPANTS:\n")
	for i, m := range team.Members {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Name)
		fmt.Fprintf(&b, "   Occupation: %s\n", m.Occupation)
		fmt.Fprintf(&b, "   Experience: %s\n", m.ExperienceLabel())
		fmt.Fprintf(&b, "   Skills: %s\n", joinOrNone(m.Skills))
		fmt.Fprintf(&b, "   Personality: %s\n", joinOrNone(m.PersonalityTraits))
	}

	b.WriteString("\nROLES:\n")
	for i, r := range roles {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Name, r.Description)
	}

	fmt.Fprintf(&b, "\nReturn a JSON array with exactly %d rows (one per participant, in the order above).\n", team.Size())
	fmt.Fprintf(&b, "Each row must contain exactly %d numbers (one per role, in the order above), each between 0 and 100.\n", len(roles))
	b.WriteString("Example for 2 participants and 3 roles: [[85, 40, 62], [30, 90, 55]]\n")
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// ParseScoreMatrix extrae el primer arreglo JSON de la respuesta y valida su forma.
// No hay coercion: celdas no numericas o fuera de rango son error.
func ParseScoreMatrix(raw string, rows, cols int) ([][]float64, error) {
	arr := extractLLMArray(raw)
	if arr == "" {
		return nil, fmt.Errorf("%w: no json array in scoring response", ErrLLMResponse)
	}

	var rawRows []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &rawRows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMResponse, err)
	}

	scores := make([][]float64, len(rawRows))
	for i, rr := range rawRows {
		var cells []json.RawMessage
		if err := json.Unmarshal(rr, &cells); err != nil {
			return nil, fmt.Errorf("%w: row %d is not an array", ErrInvalidScoreMatrix, i)
		}
		row := make([]float64, len(cells))
		for j, c := range cells {
			if string(bytes.TrimSpace(c)) == "null" || json.Unmarshal(c, &row[j]) != nil {
				return nil, fmt.Errorf("%w: cell [%d][%d] is not a number", ErrInvalidScoreMatrix, i, j)
			}
		}
		scores[i] = row
	}

	if err := ValidateScoreMatrix(scores, rows, cols); err != nil {
		return nil, err
	}
	return scores, nil
}

// ValidateScoreMatrix exige rows x cols con todas las celdas en [0,100].
func ValidateScoreMatrix(scores [][]float64, rows, cols int) error {
	if len(scores) != rows {
		return fmt.Errorf("%w: expected %d rows, got %d", ErrInvalidScoreMatrix, rows, len(scores))
	}
	for i, row := range scores {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d expected %d columns, got %d", ErrInvalidScoreMatrix, i, cols, len(row))
		}
		for j, v := range row {
			if v < domain.MinScore || v > domain.MaxScore {
				return fmt.Errorf("%w: cell [%d][%d]=%v out of range", ErrInvalidScoreMatrix, i, j, v)
			}
		}
	}
	return nil
}
