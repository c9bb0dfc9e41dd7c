package service

import (
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

const justifierSystemPrompt = `You are a team coach. You explain briefly and concretely why a person suits the role they were given.
Each explanation must be at most 500 characters, written in second person, grounded in the person's profile.`

// JustifierConfig agrupa reintentos, batch, timeout de background y parametros del modelo.
type JustifierConfig struct {
	Retry       RetryPolicy
	Batch       BatchConfig
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// DefaultJustifierConfig devuelve la configuracion por defecto del justifier.
func DefaultJustifierConfig() JustifierConfig {
	return JustifierConfig{
		Retry:       DefaultRetryPolicy(),
		Batch:       DefaultBatchConfig(),
		Timeout:     2 * time.Minute,
		Temperature: 0.7,
		MaxTokens:   3000,
	}
}

// Justifier genera con el LLM una justificacion corta por cada par postulante-rol.
type Justifier struct {
	llmClient llm.LLMClient
	cfg       JustifierConfig
	logger    *zap.Logger
	metrics   *metrics.Pipeline
}

func NewJustifier(llmClient llm.LLMClient, cfg JustifierConfig, logger *zap.Logger, m *metrics.Pipeline) *Justifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Justifier{
		llmClient: llmClient,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Timeout devuelve el limite configurado para la generacion en background.
func (j *Justifier) Timeout() time.Duration {
	return j.cfg.Timeout
}

// Justify genera la justificacion de un solo par.
func (j *Justifier) Justify(ctx context.Context, applicant domain.Applicant, role domain.RoleDefinition, score float64) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: justifierSystemPrompt,
		UserPrompt:   buildSinglePrompt(applicant, role, score),
		Temperature:  j.cfg.Temperature,
		MaxTokens:    j.cfg.MaxTokens,
	}
	return withRetry(ctx, j.cfg.Retry, j.logger, "justify", func(ctx context.Context) (string, error) {
		raw, err := j.llmClient.Complete(ctx, req)
		j.metrics.LLMCall("justification", err)
		if err != nil {
			return "", err
		}
		text := strings.Trim(strings.TrimSpace(cleanLLMJSONResponse(raw)), `"`)
		text = strings.TrimSpace(text)
		if !domain.ValidJustification(text) {
			return "", fmt.Errorf("%w: applicant %s", ErrInvalidJustification, applicant.ID)
		}
		return text, nil
	})
}

// JustifyTeam genera todas las justificaciones del equipo en una sola llamada y
// devuelve una copia de la asignacion con JustificationsGenerated en true.
func (j *Justifier) JustifyTeam(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) (domain.TeamAssignment, error) {
	if len(assignment.Assignments) == 0 {
		return domain.TeamAssignment{}, fmt.Errorf("%w: assignment has no pairs", ErrInvalidAssignment)
	}
	req := llm.CompletionRequest{
		SystemPrompt: justifierSystemPrompt,
		UserPrompt:   BuildJustificationPrompt(team, roles, assignment),
		Temperature:  j.cfg.Temperature,
		MaxTokens:    j.cfg.MaxTokens,
	}

	texts, err := withRetry(ctx, j.cfg.Retry, j.logger, "justify_team", func(ctx context.Context) (map[string]string, error) {
		raw, err := j.llmClient.Complete(ctx, req)
		j.metrics.LLMCall("justification", err)
		if err != nil {
			return nil, err
		}
		return ParseJustifications(raw, team, assignment)
	})
	if err != nil {
		j.logger.Warn("team justification failed", zap.String("team_id", team.ID), zap.Error(err))
		return domain.TeamAssignment{}, err
	}

	out := assignment.Clone()
	for i := range out.Assignments {
		out.Assignments[i].Justification = texts[out.Assignments[i].ApplicantID]
	}
	out.JustificationsGenerated = out.HasAllJustifications()
	return out, nil
}

type justificationItem struct {
	ApplicantID      string `json:"applicantId"`
	ApplicantIDSnake string `json:"applicant_id"`
	Name             string `json:"name"`
	Justification    string `json:"justification"`
}

// ParseJustifications devuelve applicantID -> justificacion. Si el modelo devuelve el
// nombre del participante en lugar del id, se resuelve con el roster del equipo.
// Falta de justificacion para algun par o textos de mas de 500 caracteres son error.
func ParseJustifications(raw string, team domain.Team, assignment domain.TeamAssignment) (map[string]string, error) {
	arr := extractLLMArray(raw)
	if arr == "" {
		return nil, fmt.Errorf("%w: no json array in justification response", ErrLLMResponse)
	}
	var items []justificationItem
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMResponse, err)
	}

	expected := make(map[string]struct{}, len(assignment.Assignments))
	for _, pair := range assignment.Assignments {
		expected[pair.ApplicantID] = struct{}{}
	}
	// Nombres repetidos se reparten en el orden del prompt.
	byName := make(map[string][]string, team.Size())
	for _, pair := range assignment.Assignments {
		if m, ok := team.MemberByID(pair.ApplicantID); ok {
			key := normalizeName(m.Name)
			byName[key] = append(byName[key], m.ID)
		}
	}

	out := make(map[string]string, len(expected))
	accept := func(id, text string) error {
		text = strings.TrimSpace(text)
		if !domain.ValidJustification(text) {
			return fmt.Errorf("%w: applicant %s has empty or too long justification", ErrInvalidJustification, id)
		}
		if _, dup := out[id]; !dup {
			out[id] = text
		}
		return nil
	}

	// Primero los ids exactos, despues los nombres, para que un nombre no ocupe
	// el id que otra entrada trae explicitamente.
	var byNameOnly []justificationItem
	for _, item := range items {
		id := ""
		for _, key := range []string{item.ApplicantID, item.ApplicantIDSnake} {
			if _, ok := expected[strings.TrimSpace(key)]; ok {
				id = strings.TrimSpace(key)
				break
			}
		}
		if id == "" {
			byNameOnly = append(byNameOnly, item)
			continue
		}
		if err := accept(id, item.Justification); err != nil {
			return nil, err
		}
	}
	for _, item := range byNameOnly {
		id := ""
		for _, key := range []string{item.ApplicantID, item.ApplicantIDSnake, item.Name} {
			if id = nextByName(byName, out, key); id != "" {
				break
			}
		}
		if id == "" {
			continue
		}
		if err := accept(id, item.Justification); err != nil {
			return nil, err
		}
	}

	for id := range expected {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: missing justification for applicant %s", ErrInvalidJustification, id)
		}
	}
	return out, nil
}

// nextByName devuelve el primer miembro con ese nombre que todavia no tiene texto.
func nextByName(byName map[string][]string, taken map[string]string, name string) string {
	for _, id := range byName[normalizeName(name)] {
		if _, ok := taken[id]; !ok {
			return id
		}
	}
	return ""
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// BuildJustificationPrompt arma un unico prompt con todos los pares del equipo.
func BuildJustificationPrompt(team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) string {
	var b strings.Builder
	b.WriteString("Write a short justification for each of these role assignments.\n\n")
	for i, pair := range assignment.Assignments {
		member, _ := team.MemberByID(pair.ApplicantID)
		role, _ := domain.RoleByID(roles, pair.RoleID)
		fmt.Fprintf(&b, "%d. applicantId: %s\n", i+1, pair.ApplicantID)
		fmt.Fprintf(&b, "   Name: %s\n", member.Name)
		fmt.Fprintf(&b, "   Occupation: %s (%s)\n", member.Occupation, member.ExperienceLabel())
		fmt.Fprintf(&b, "   Skills: %s\n", joinOrNone(member.Skills))
		fmt.Fprintf(&b, "   Personality: %s\n", joinOrNone(member.PersonalityTraits))
		fmt.Fprintf(&b, "   Role: %s - %s\n", role.Name, role.Description)
		fmt.Fprintf(&b, "   Fit score: %.0f/100\n", pair.Score)
	}
	b.WriteString("\nRespond ONLY with a JSON array, one object per assignment:\n")
	b.WriteString(`[{"applicantId": "<the applicantId above>", "justification": "<max 500 characters>"}]`)
	b.WriteString("\nUse the exact applicantId values shown above.\n")
	return b.String()
}

func buildSinglePrompt(applicant domain.Applicant, role domain.RoleDefinition, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Participant: %s\n", applicant.Name)
	fmt.Fprintf(&b, "Occupation: %s (%s)\n", applicant.Occupation, applicant.ExperienceLabel())
	fmt.Fprintf(&b, "Skills: %s\n", joinOrNone(applicant.Skills))
	fmt.Fprintf(&b, "Personality: %s\n", joinOrNone(applicant.PersonalityTraits))
	fmt.Fprintf(&b, "Assigned role: %s - %s\n", role.Name, role.Description)
	fmt.Fprintf(&b, "Fit score: %.0f/100\n\n", score)
	b.WriteString("Respond with the justification text only, at most 500 characters.")
	return b.String()
}

// JustificationJob es una entrada de JustifyTeamsBatch.
type JustificationJob struct {
	Team       domain.Team
	Roles      []domain.RoleDefinition
	Assignment domain.TeamAssignment
}

// TeamJustificationResult es el resultado por equipo de JustifyTeamsBatch.
type TeamJustificationResult struct {
	TeamID     string
	Assignment domain.TeamAssignment
	Err        error
}

// JustifyTeamsBatch justifica varios equipos por chunks; la segunda pasada agrega jitter.
func (j *Justifier) JustifyTeamsBatch(ctx context.Context, jobs []JustificationJob) ([]TeamJustificationResult, BatchSummary) {
	outcomes, summary := runChunked(ctx, j.cfg.Batch, jobs, func(ctx context.Context, job JustificationJob) (domain.TeamAssignment, error) {
		return j.JustifyTeam(ctx, job.Team, job.Roles, job.Assignment)
	})

	results := make([]TeamJustificationResult, len(jobs))
	for i, o := range outcomes {
		results[i] = TeamJustificationResult{TeamID: jobs[i].Team.ID, Assignment: o.value, Err: o.err}
	}
	j.logger.Info("batch justification finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return results, summary
}
