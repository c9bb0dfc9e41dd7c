package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"team-roles/internal/domain"
	"team-roles/internal/metrics"
	"team-roles/internal/repository"
)

// TeamScorer produce matrices de puntaje.
type TeamScorer interface {
	ScoreTeam(ctx context.Context, team domain.Team, roles []domain.RoleDefinition) (domain.ScoreMatrix, error)
	ScoreTeamsBatch(ctx context.Context, teams []domain.Team, rolesPerTeam [][]domain.RoleDefinition) ([]TeamScoreResult, BatchSummary)
}

// TeamJustifier completa las justificaciones de una asignacion.
type TeamJustifier interface {
	Justify(ctx context.Context, applicant domain.Applicant, role domain.RoleDefinition, score float64) (string, error)
	JustifyTeam(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) (domain.TeamAssignment, error)
	JustifyTeamsBatch(ctx context.Context, jobs []JustificationJob) ([]TeamJustificationResult, BatchSummary)
}

const persistTimeout = 10 * time.Second

// Processor ejecuta el pipeline por equipo:
// pending -> scoring -> assigning -> justifying -> complete.
type Processor struct {
	teams                repository.TeamRepository
	sessions             repository.AssignmentSessionRepository
	scorer               TeamScorer
	assigner             *Assigner
	justifier            TeamJustifier
	roles                []domain.RoleDefinition
	justificationTimeout time.Duration
	logger               *zap.Logger
	metrics              *metrics.Pipeline

	bg sync.WaitGroup
}

func NewProcessor(
	teams repository.TeamRepository,
	sessions repository.AssignmentSessionRepository,
	scorer TeamScorer,
	assigner *Assigner,
	justifier TeamJustifier,
	roles []domain.RoleDefinition,
	justificationTimeout time.Duration,
	logger *zap.Logger,
	m *metrics.Pipeline,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assigner == nil {
		assigner = NewAssigner(logger)
	}
	if justificationTimeout <= 0 {
		justificationTimeout = 2 * time.Minute
	}
	return &Processor{
		teams:                teams,
		sessions:             sessions,
		scorer:               scorer,
		assigner:             assigner,
		justifier:            justifier,
		roles:                roles,
		justificationTimeout: justificationTimeout,
		logger:               logger,
		metrics:              m,
	}
}

// ProcessTeam corre scoring y matching de forma sincronica y deja la generacion de
// justificaciones en background. Un fallo de scoring o matching vuelve la sesion a pending.
func (p *Processor) ProcessTeam(ctx context.Context, teamID string) error {
	team, session, err := p.loadTeamSession(ctx, teamID)
	if err != nil {
		return err
	}
	switch session.Status {
	case domain.StatusComplete:
		p.logger.Info("assignment already complete", zap.String("team_id", teamID))
		return nil
	case domain.StatusJustifying:
		if session.HasAssignment() {
			p.logger.Info("justifications already pending", zap.String("team_id", teamID))
			return nil
		}
	}
	roles := p.sessionRoles(session)

	matrix, err := p.scoreStage(ctx, team, roles, session)
	if err != nil {
		return err
	}

	assignment, err := p.matchStage(ctx, team, roles, session, matrix)
	if err != nil {
		return err
	}

	if err := p.sessions.UpdateStatus(ctx, session.ID, domain.StatusJustifying); err != nil {
		// El par ya es valido; se completa sin justificaciones.
		p.logger.Error("mark justifying failed", zap.String("team_id", teamID), zap.Error(err))
		p.markComplete(session.ID, teamID)
		return nil
	}

	p.logger.Info("roles assigned, justifications pending",
		zap.String("team_id", teamID),
		zap.Float64("total_score", assignment.TotalScore),
	)
	p.justifyInBackground(team, roles, session.ID, assignment)
	return nil
}

func (p *Processor) loadTeamSession(ctx context.Context, teamID string) (domain.Team, domain.AssignmentSession, error) {
	team, err := p.teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Team{}, domain.AssignmentSession{}, fmt.Errorf("%w: %s", ErrTeamNotFound, teamID)
		}
		return domain.Team{}, domain.AssignmentSession{}, fmt.Errorf("get team: %w", err)
	}
	if !team.IsComplete {
		return domain.Team{}, domain.AssignmentSession{}, fmt.Errorf("%w: %s", ErrTeamNotComplete, teamID)
	}
	session, err := p.sessions.GetOrCreate(ctx, team.ID, team.SessionID, p.roles)
	if err != nil {
		return domain.Team{}, domain.AssignmentSession{}, fmt.Errorf("get or create assignment session: %w", err)
	}
	return team, session, nil
}

func (p *Processor) sessionRoles(session domain.AssignmentSession) []domain.RoleDefinition {
	if len(session.Roles) > 0 {
		return session.Roles
	}
	return p.roles
}

func (p *Processor) scoreStage(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, session domain.AssignmentSession) (domain.ScoreMatrix, error) {
	if err := p.sessions.UpdateStatus(ctx, session.ID, domain.StatusScoring); err != nil {
		return domain.ScoreMatrix{}, fmt.Errorf("%w: mark scoring: %w", ErrScoringFailed, err)
	}

	start := time.Now()
	matrix, err := p.scorer.ScoreTeam(ctx, team, roles)
	if err == nil {
		err = p.sessions.SaveAssignmentData(ctx, session.ID, nil, &matrix)
	}
	p.metrics.ObserveStage("scoring", time.Since(start), err)
	if err != nil {
		p.rollback(session.ID, team.ID)
		return domain.ScoreMatrix{}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	return matrix, nil
}

func (p *Processor) matchStage(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, session domain.AssignmentSession, matrix domain.ScoreMatrix) (domain.TeamAssignment, error) {
	if err := p.sessions.UpdateStatus(ctx, session.ID, domain.StatusAssigning); err != nil {
		p.rollback(session.ID, team.ID)
		return domain.TeamAssignment{}, fmt.Errorf("%w: mark assigning: %w", ErrMatchingFailed, err)
	}

	start := time.Now()
	assignment, err := p.assigner.AssignRoles(team, roles, matrix)
	if err == nil {
		err = p.sessions.SaveAssignmentData(ctx, session.ID, &assignment, nil)
	}
	p.metrics.ObserveStage("matching", time.Since(start), err)
	if err != nil {
		p.rollback(session.ID, team.ID)
		return domain.TeamAssignment{}, fmt.Errorf("%w: %w", ErrMatchingFailed, err)
	}

	p.annotateMembers(ctx, team.ID, assignment)
	return assignment, nil
}

func (p *Processor) annotateMembers(ctx context.Context, teamID string, assignment domain.TeamAssignment) {
	for _, pair := range assignment.Assignments {
		if err := p.teams.SetMemberRole(ctx, teamID, pair.ApplicantID, pair.RoleID); err != nil {
			p.logger.Warn("annotate member role failed",
				zap.String("team_id", teamID),
				zap.String("applicant_id", pair.ApplicantID),
				zap.Error(err),
			)
		}
	}
}

// rollback vuelve la sesion a pending con un contexto propio para no depender del caller.
func (p *Processor) rollback(sessionID, teamID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.sessions.UpdateStatus(ctx, sessionID, domain.StatusPending); err != nil {
		p.logger.Error("rollback to pending failed", zap.String("team_id", teamID), zap.Error(err))
	}
}

func (p *Processor) markComplete(sessionID, teamID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.sessions.UpdateStatus(ctx, sessionID, domain.StatusComplete); err != nil {
		p.logger.Error("mark complete failed", zap.String("team_id", teamID), zap.Error(err))
	}
}

// justifyInBackground no se espera desde el caller. La sesion termina en complete
// aunque la generacion falle, entre en panic o supere el timeout.
func (p *Processor) justifyInBackground(team domain.Team, roles []domain.RoleDefinition, sessionID string, assignment domain.TeamAssignment) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		defer p.markComplete(sessionID, team.ID)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background justification panicked", zap.String("team_id", team.ID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.justificationTimeout)
		defer cancel()

		start := time.Now()
		justified, err := p.justifyWithDeadline(ctx, team, roles, assignment)
		p.metrics.ObserveStage("justification", time.Since(start), err)
		if err != nil {
			p.logger.Warn("justifications skipped",
				zap.String("team_id", team.ID),
				zap.Error(fmt.Errorf("%w: %w", ErrJustificationFailed, err)),
			)
			return
		}

		saveCtx, saveCancel := context.WithTimeout(context.Background(), persistTimeout)
		defer saveCancel()
		if err := p.sessions.SaveAssignmentData(saveCtx, sessionID, &justified, nil); err != nil {
			p.logger.Error("save justifications failed", zap.String("team_id", team.ID), zap.Error(err))
			return
		}
		p.logger.Info("justifications generated", zap.String("team_id", team.ID))
	}()
}

type justifyResult struct {
	assignment domain.TeamAssignment
	err        error
}

// justifyWithDeadline corta la espera al vencer ctx aunque el cliente ignore la cancelacion.
func (p *Processor) justifyWithDeadline(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) (domain.TeamAssignment, error) {
	done := make(chan justifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- justifyResult{err: fmt.Errorf("justifier panicked: %v", r)}
			}
		}()
		a, err := p.justifier.JustifyTeam(ctx, team, roles, assignment)
		done <- justifyResult{assignment: a, err: err}
	}()
	select {
	case res := <-done:
		return res.assignment, res.err
	case <-ctx.Done():
		return domain.TeamAssignment{}, fmt.Errorf("justification timed out: %w", ctx.Err())
	}
}

// WaitBackground espera las justificaciones en curso o hasta que venza ctx.
func (p *Processor) WaitBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegenerateJustifications vuelve a generar, de forma sincronica, las justificaciones
// de una sesion completa que quedo con JustificationsGenerated en false.
func (p *Processor) RegenerateJustifications(ctx context.Context, teamID string) (domain.TeamAssignment, error) {
	team, err := p.teams.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TeamAssignment{}, fmt.Errorf("%w: %s", ErrTeamNotFound, teamID)
		}
		return domain.TeamAssignment{}, fmt.Errorf("get team: %w", err)
	}
	session, err := p.sessions.GetByTeamID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TeamAssignment{}, fmt.Errorf("%w: no assignment for team %s", ErrTeamNotFound, teamID)
		}
		return domain.TeamAssignment{}, fmt.Errorf("get assignment session: %w", err)
	}
	if session.Status != domain.StatusComplete || !session.HasAssignment() {
		return domain.TeamAssignment{}, fmt.Errorf("%w: assignment for team %s is %s", ErrTeamNotComplete, teamID, session.Status)
	}
	if session.Assignment.JustificationsGenerated {
		return *session.Assignment, nil
	}

	roles := p.sessionRoles(session)
	if err := p.assigner.ValidateAssignment(team, roles, *session.Assignment); err != nil {
		return domain.TeamAssignment{}, fmt.Errorf("stored assignment for team %s: %w", teamID, err)
	}

	start := time.Now()
	justified, err := p.justifier.JustifyTeam(ctx, team, roles, *session.Assignment)
	if err != nil {
		p.logger.Warn("team justification failed, falling back to single pairs", zap.String("team_id", teamID), zap.Error(err))
		justified, err = p.justifyPairs(ctx, team, roles, *session.Assignment)
	}
	p.metrics.ObserveStage("justification", time.Since(start), err)
	if err != nil {
		return domain.TeamAssignment{}, fmt.Errorf("%w: %w", ErrJustificationFailed, err)
	}
	if err := p.sessions.SaveAssignmentData(ctx, session.ID, &justified, nil); err != nil {
		return domain.TeamAssignment{}, fmt.Errorf("save justifications: %w", err)
	}
	return justified, nil
}

// justifyPairs completa, par por par, los textos que falten. Si alguno falla no
// se devuelve nada parcial.
func (p *Processor) justifyPairs(ctx context.Context, team domain.Team, roles []domain.RoleDefinition, assignment domain.TeamAssignment) (domain.TeamAssignment, error) {
	out := assignment.Clone()
	for i, pair := range out.Assignments {
		if domain.ValidJustification(pair.Justification) {
			continue
		}
		member, _ := team.MemberByID(pair.ApplicantID)
		role, _ := domain.RoleByID(roles, pair.RoleID)
		text, err := p.justifier.Justify(ctx, member, role, pair.Score)
		if err != nil {
			return domain.TeamAssignment{}, fmt.Errorf("justify applicant %s: %w", pair.ApplicantID, err)
		}
		out.Assignments[i].Justification = text
	}
	out.JustificationsGenerated = out.HasAllJustifications()
	return out, nil
}

// TeamProcessResult es el resultado por equipo de ProcessTeams.
type TeamProcessResult struct {
	TeamID     string                 `json:"team_id"`
	Assignment *domain.TeamAssignment `json:"assignment,omitempty"`
	Err        error                  `json:"-"`
}

type batchEntry struct {
	team    domain.Team
	session domain.AssignmentSession
	roles   []domain.RoleDefinition
}

// ProcessTeams puntua todos los equipos con ScoreTeamsBatch, asigna cada uno y
// justifica los asignados con JustifyTeamsBatch en background. No pasa por la
// AssignmentQueue: la concurrencia la acota BatchConfig.ChunkSize, no MaxConcurrent,
// y quien llama debe excluir equipos que la cola ya esta procesando.
func (p *Processor) ProcessTeams(ctx context.Context, teamIDs []string) []TeamProcessResult {
	results := make([]TeamProcessResult, len(teamIDs))
	var entries []batchEntry
	var entryIdx []int

	for i, id := range teamIDs {
		results[i].TeamID = id
		team, session, err := p.loadTeamSession(ctx, id)
		if err != nil {
			results[i].Err = err
			continue
		}
		if session.Status == domain.StatusComplete || (session.Status == domain.StatusJustifying && session.HasAssignment()) {
			results[i].Assignment = session.Assignment
			continue
		}
		if err := p.sessions.UpdateStatus(ctx, session.ID, domain.StatusScoring); err != nil {
			results[i].Err = fmt.Errorf("%w: mark scoring: %w", ErrScoringFailed, err)
			continue
		}
		entries = append(entries, batchEntry{team: team, session: session, roles: p.sessionRoles(session)})
		entryIdx = append(entryIdx, i)
	}
	if len(entries) == 0 {
		return results
	}

	teams := make([]domain.Team, len(entries))
	roles := make([][]domain.RoleDefinition, len(entries))
	for k, e := range entries {
		teams[k] = e.team
		roles[k] = e.roles
	}
	start := time.Now()
	scored, summary := p.scorer.ScoreTeamsBatch(ctx, teams, roles)
	p.metrics.ObserveStage("scoring", time.Since(start), nil)
	p.logger.Info("batch scored", zap.Int("succeeded", summary.Succeeded), zap.Int("failed", summary.Failed))

	var jobs []JustificationJob
	var jobSessions []string
	for k, e := range entries {
		i := entryIdx[k]
		res := scored[k]
		if res.Err == nil {
			res.Err = p.sessions.SaveAssignmentData(ctx, e.session.ID, nil, &res.Matrix)
		}
		if res.Err != nil {
			p.rollback(e.session.ID, e.team.ID)
			results[i].Err = fmt.Errorf("%w: %w", ErrScoringFailed, res.Err)
			continue
		}
		assignment, err := p.matchStage(ctx, e.team, e.roles, e.session, res.Matrix)
		if err != nil {
			results[i].Err = err
			continue
		}
		if err := p.sessions.UpdateStatus(ctx, e.session.ID, domain.StatusJustifying); err != nil {
			p.logger.Error("mark justifying failed", zap.String("team_id", e.team.ID), zap.Error(err))
			p.markComplete(e.session.ID, e.team.ID)
			results[i].Assignment = &assignment
			continue
		}
		results[i].Assignment = &assignment
		jobs = append(jobs, JustificationJob{Team: e.team, Roles: e.roles, Assignment: assignment})
		jobSessions = append(jobSessions, e.session.ID)
	}

	if len(jobs) > 0 {
		p.justifyBatchInBackground(jobs, jobSessions)
	}
	return results
}

func (p *Processor) justifyBatchInBackground(jobs []JustificationJob, sessionIDs []string) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		defer func() {
			for k, job := range jobs {
				p.markComplete(sessionIDs[k], job.Team.ID)
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background batch justification panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.justificationTimeout)
		defer cancel()

		done := make(chan []TeamJustificationResult, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("batch justifier panicked", zap.Any("panic", r))
					done <- nil
				}
			}()
			res, _ := p.justifier.JustifyTeamsBatch(ctx, jobs)
			done <- res
		}()

		var results []TeamJustificationResult
		select {
		case results = <-done:
		case <-ctx.Done():
			p.logger.Warn("batch justification timed out", zap.Int("teams", len(jobs)))
			return
		}

		for k, res := range results {
			if res.Err != nil {
				p.logger.Warn("justifications skipped",
					zap.String("team_id", res.TeamID),
					zap.Error(fmt.Errorf("%w: %w", ErrJustificationFailed, res.Err)),
				)
				continue
			}
			saveCtx, saveCancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := p.sessions.SaveAssignmentData(saveCtx, sessionIDs[k], &res.Assignment, nil); err != nil {
				p.logger.Error("save justifications failed", zap.String("team_id", res.TeamID), zap.Error(err))
			}
			saveCancel()
		}
	}()
}

// AssignmentView es la sesion de un equipo con vistas derivadas.
type AssignmentView struct {
	Session domain.AssignmentSession `json:"session"`
	Stats   *AssignmentStats         `json:"stats,omitempty"`
	Details []AssignmentDetail       `json:"details,omitempty"`
	// Problem describe por que la asignacion guardada ya no es valida para el equipo.
	Problem string `json:"problem,omitempty"`
}

// GetAssignment devuelve la sesion del equipo con estadisticas y detalle si ya hay asignacion.
func (p *Processor) GetAssignment(ctx context.Context, teamID string) (AssignmentView, error) {
	session, err := p.sessions.GetByTeamID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AssignmentView{}, fmt.Errorf("%w: no assignment for team %s", ErrTeamNotFound, teamID)
		}
		return AssignmentView{}, fmt.Errorf("get assignment session: %w", err)
	}
	view := AssignmentView{Session: session}
	if !session.HasAssignment() {
		return view, nil
	}
	stats := p.assigner.GetAssignmentStats(*session.Assignment)
	view.Stats = &stats

	team, err := p.teams.GetByID(ctx, teamID)
	if err != nil {
		p.logger.Warn("team lookup for assignment details failed", zap.String("team_id", teamID), zap.Error(err))
		return view, nil
	}
	roles := p.sessionRoles(session)
	if err := p.assigner.ValidateAssignment(team, roles, *session.Assignment); err != nil {
		p.logger.Warn("stored assignment no longer matches team", zap.String("team_id", teamID), zap.Error(err))
		view.Problem = err.Error()
	}
	view.Details = p.assigner.GetAssignmentDetails(team, roles, *session.Assignment)
	return view, nil
}
