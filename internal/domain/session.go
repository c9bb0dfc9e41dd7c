package domain

import "time"

// AssignmentStatus es el estado de la maquina de asignacion.
type AssignmentStatus string

const (
	StatusPending    AssignmentStatus = "pending"
	StatusScoring    AssignmentStatus = "scoring"
	StatusAssigning  AssignmentStatus = "assigning"
	StatusJustifying AssignmentStatus = "justifying"
	StatusComplete   AssignmentStatus = "complete"
)

// InFlightStatuses son los estados no terminales que el health checker audita.
var InFlightStatuses = []AssignmentStatus{StatusScoring, StatusAssigning, StatusJustifying}

// IsKnown indica si el estado pertenece a la maquina.
func (s AssignmentStatus) IsKnown() bool {
	switch s {
	case StatusPending, StatusScoring, StatusAssigning, StatusJustifying, StatusComplete:
		return true
	}
	return false
}

// IsInFlight indica si el estado es intermedio (ni pending ni complete).
func (s AssignmentStatus) IsInFlight() bool {
	return s == StatusScoring || s == StatusAssigning || s == StatusJustifying
}

// AssignmentSession es la unidad persistida por equipo; team_id es unico.
type AssignmentSession struct {
	ID          string           `json:"id"`
	TeamID      string           `json:"team_id"`
	SessionID   string           `json:"session_id"`
	Roles       []RoleDefinition `json:"roles"`
	ScoreMatrix *ScoreMatrix     `json:"score_matrix,omitempty"`
	Assignment  *TeamAssignment  `json:"assignment,omitempty"`
	Status      AssignmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasAssignment indica si ya hay pares persistidos.
func (s AssignmentSession) HasAssignment() bool {
	return s.Assignment != nil && len(s.Assignment.Assignments) > 0
}
