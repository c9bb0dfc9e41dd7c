package service

import "errors"

// Errores de etapa que el pipeline de asignacion expone hacia arriba.
var (
	ErrTeamNotFound        = errors.New("team not found")
	ErrTeamNotComplete     = errors.New("team is not complete")
	ErrScoringFailed       = errors.New("scoring failed")
	ErrMatchingFailed      = errors.New("matching failed")
	ErrJustificationFailed = errors.New("justification failed")
	ErrSessionConflict     = errors.New("assignment session conflict")
)

// Errores de validacion.
var (
	ErrInvalidScoreMatrix   = errors.New("invalid score matrix")
	ErrInvalidAssignment    = errors.New("invalid assignment")
	ErrInvalidJustification = errors.New("invalid justification")
	ErrNotEnoughRoles       = errors.New("not enough roles for team size")
	ErrLLMResponse          = errors.New("unparseable llm response")
)
