package domain

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoleDefinition es un rol del catalogo fijo que se adjunta a cada sesion de asignacion.
type RoleDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

type roleCatalogFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

// DefaultRoleCatalog devuelve el catalogo incluido cuando no se configura un archivo.
func DefaultRoleCatalog() []RoleDefinition {
	return []RoleDefinition{
		{ID: "leader", Name: "Leader", Description: "Sets direction, keeps the team aligned and makes the final call when opinions split."},
		{ID: "strategist", Name: "Strategist", Description: "Breaks the goal into a plan, weighs trade-offs and anticipates risks."},
		{ID: "builder", Name: "Builder", Description: "Turns plans into working results; hands-on, pragmatic and execution focused."},
		{ID: "researcher", Name: "Researcher", Description: "Gathers evidence, validates assumptions and brings outside knowledge in."},
		{ID: "communicator", Name: "Communicator", Description: "Presents the team's work, writes clearly and keeps stakeholders informed."},
		{ID: "designer", Name: "Designer", Description: "Shapes the experience, visual quality and usability of what the team delivers."},
		{ID: "analyst", Name: "Analyst", Description: "Works with numbers and data to measure progress and support decisions."},
		{ID: "mediator", Name: "Mediator", Description: "Keeps collaboration healthy, resolves conflicts and makes sure every voice is heard."},
		{ID: "innovator", Name: "Innovator", Description: "Proposes unconventional ideas and pushes the team beyond the obvious solution."},
		{ID: "quality_guardian", Name: "Quality Guardian", Description: "Reviews details, tests assumptions and makes sure the result meets the bar."},
	}
}

// LoadRoleCatalog lee un catalogo YAML con la forma `roles: [{id, name, description}]`.
func LoadRoleCatalog(path string) ([]RoleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("role catalog: read %s: %w", path, err)
	}
	return ParseRoleCatalog(data)
}

// ParseRoleCatalog decodifica y valida un catalogo YAML.
func ParseRoleCatalog(data []byte) ([]RoleDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("role catalog: payload is empty")
	}
	var file roleCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("role catalog: decode: %w", err)
	}
	roles := make([]RoleDefinition, 0, len(file.Roles))
	for _, r := range file.Roles {
		roles = append(roles, RoleDefinition{
			ID:          strings.TrimSpace(r.ID),
			Name:        strings.TrimSpace(r.Name),
			Description: strings.TrimSpace(r.Description),
		})
	}
	if err := ValidateRoleCatalog(roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ValidateRoleCatalog exige ids y nombres no vacios y sin duplicados.
func ValidateRoleCatalog(roles []RoleDefinition) error {
	if len(roles) == 0 {
		return fmt.Errorf("role catalog: no roles defined")
	}
	ids := make(map[string]struct{}, len(roles))
	names := make(map[string]struct{}, len(roles))
	for i, r := range roles {
		if r.ID == "" || r.Name == "" {
			return fmt.Errorf("role catalog: role %d requires id and name", i)
		}
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("role catalog: duplicate role id %q", r.ID)
		}
		key := strings.ToLower(r.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("role catalog: duplicate role name %q", r.Name)
		}
		ids[r.ID] = struct{}{}
		names[key] = struct{}{}
	}
	return nil
}

// RoleByID busca un rol por id dentro del catalogo.
func RoleByID(roles []RoleDefinition, id string) (RoleDefinition, bool) {
	for _, r := range roles {
		if r.ID == id {
			return r, true
		}
	}
	return RoleDefinition{}, false
}
