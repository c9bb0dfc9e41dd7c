package domain

import (
	"strconv"
	"strings"
)

// Unidades de experiencia admitidas en el formulario de postulacion.
const (
	ExperienceUnitYears  = "years"
	ExperienceUnitMonths = "months"
)

// Applicant es un postulante ya enviado; no se modifica despues de la postulacion.
type Applicant struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Occupation        string   `json:"occupation"`
	YearsOfExperience int      `json:"years_of_experience"`
	ExperienceUnit    string   `json:"experience_unit"`
	Skills            []string `json:"skills"`             // max 5, cada una <= 30 chars
	PersonalityTraits []string `json:"personality_traits"` // max 5, cada uno <= 40 chars
	RoleID            string   `json:"role_id,omitempty"`  // anotacion agregada tras la asignacion
}

// ExperienceLabel devuelve la experiencia en formato legible ("3 years", "8 months").
func (a Applicant) ExperienceLabel() string {
	unit := strings.TrimSpace(a.ExperienceUnit)
	if unit == "" {
		unit = ExperienceUnitYears
	}
	return strconv.Itoa(a.YearsOfExperience) + " " + unit
}

// Team agrupa postulantes de una sesion. IsComplete pasa a true exactamente
// cuando la cantidad de miembros alcanza MaxMembers.
type Team struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	MaxMembers int         `json:"max_members"`
	IsComplete bool        `json:"is_complete"`
	Members    []Applicant `json:"members"`
}

// Size es la cantidad actual de miembros.
func (t Team) Size() int {
	return len(t.Members)
}

// MemberByID busca un miembro por id.
func (t Team) MemberByID(id string) (Applicant, bool) {
	for _, m := range t.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Applicant{}, false
}
