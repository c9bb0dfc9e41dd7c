package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Limites de puntajes y justificaciones.
const (
	MinScore               = 0
	MaxScore               = 100
	MaxJustificationLength = 500
)

// ScoreMatrix es la grilla postulante x rol. La fila i corresponde al miembro i del equipo.
type ScoreMatrix struct {
	TeamID      string      `json:"team_id"`
	Scores      [][]float64 `json:"scores"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Assignment es un par postulante-rol elegido por el matcher.
type Assignment struct {
	ApplicantID   string  `json:"applicant_id"`
	RoleID        string  `json:"role_id"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification,omitempty"`
}

// TeamAssignment contiene exactamente un par por miembro, sin postulantes ni roles repetidos.
type TeamAssignment struct {
	TeamID                  string       `json:"team_id"`
	Assignments             []Assignment `json:"assignments"`
	TotalScore              float64      `json:"total_score"`
	GeneratedAt             time.Time    `json:"generated_at"`
	JustificationsGenerated bool         `json:"justifications_generated"`
}

// HasAllJustifications es true si cada par tiene una justificacion no vacia de hasta 500 caracteres.
func (a TeamAssignment) HasAllJustifications() bool {
	if len(a.Assignments) == 0 {
		return false
	}
	for _, pair := range a.Assignments {
		if !ValidJustification(pair.Justification) {
			return false
		}
	}
	return true
}

// Clone devuelve una copia independiente de los pares.
func (a TeamAssignment) Clone() TeamAssignment {
	out := a
	out.Assignments = append([]Assignment(nil), a.Assignments...)
	return out
}

// ValidJustification valida el texto de una justificacion.
func ValidJustification(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed != "" && utf8.RuneCountInString(trimmed) <= MaxJustificationLength
}
