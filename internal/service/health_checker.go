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

// TeamEnqueuer es la parte de la cola que usa el health checker.
type TeamEnqueuer interface {
	Enqueue(teamID string) bool
	IsActive(teamID string) bool
}

// HealthConfig define cada cuanto se barre y desde cuando una sesion se considera trabada.
type HealthConfig struct {
	Interval       time.Duration
	StuckThreshold time.Duration
}

// DefaultHealthConfig: barrido cada 2 minutos, trabada tras 5 minutos sin cambios.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{Interval: 2 * time.Minute, StuckThreshold: 5 * time.Minute}
}

// Acciones de recuperacion.
const (
	RecoveryForcedComplete = "forced_complete"
	RecoveryRequeued       = "requeued"
	RecoverySkipped        = "skipped"
	RecoveryUnrecoverable  = "unrecoverable"
	RecoveryFailed         = "failed"
	RecoveryNotFound       = "not_found"
)

// RecoveryResult describe que se hizo con una sesion.
type RecoveryResult struct {
	TeamID string                  `json:"team_id"`
	Status domain.AssignmentStatus `json:"status,omitempty"`
	Action string                  `json:"action"`
	Error  string                  `json:"error,omitempty"`
}

// SweepReport resume un barrido.
type SweepReport struct {
	Checked        int              `json:"checked"`
	Recovered      int              `json:"recovered"`
	ForcedComplete int              `json:"forced_complete"`
	Requeued       int              `json:"requeued"`
	Failed         int              `json:"failed"`
	Results        []RecoveryResult `json:"results"`
}

// HealthStats resume sesiones por estado.
type HealthStats struct {
	Counts map[domain.AssignmentStatus]int `json:"counts"`
	Total  int                             `json:"total"`
	Stuck  int                             `json:"stuck"`
}

// HealthChecker busca sesiones trabadas en estados intermedios y las lleva a un
// estado recuperable: complete si ya hay asignacion, o pending y reencolado.
type HealthChecker struct {
	sessions repository.AssignmentSessionRepository
	queue    TeamEnqueuer
	cfg      HealthConfig
	logger   *zap.Logger
	metrics  *metrics.Pipeline
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthChecker(sessions repository.AssignmentSessionRepository, queue TeamEnqueuer, cfg HealthConfig, logger *zap.Logger, m *metrics.Pipeline) *HealthChecker {
	def := DefaultHealthConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = def.StuckThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		sessions: sessions,
		queue:    queue,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Start lanza el barrido periodico; el primero corre de inmediato. Llamadas repetidas no hacen nada.
func (h *HealthChecker) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
	h.logger.Info("health checker started",
		zap.Duration("interval", h.cfg.Interval),
		zap.Duration("stuck_threshold", h.cfg.StuckThreshold),
	)
}

// Stop detiene el barrido y espera a que termine el actual.
func (h *HealthChecker) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Info("health checker stopped")
}

func (h *HealthChecker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := h.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			h.logger.Error("health sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce recupera las sesiones en scoring, assigning o justifying sin cambios
// desde hace mas del umbral.
func (h *HealthChecker) SweepOnce(ctx context.Context) (SweepReport, error) {
	cutoff := h.now().Add(-h.cfg.StuckThreshold)
	stuck, err := h.sessions.ListStuck(ctx, domain.InFlightStatuses, cutoff)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list stuck sessions: %w", err)
	}

	report := SweepReport{Checked: len(stuck), Results: make([]RecoveryResult, 0, len(stuck))}
	for _, s := range stuck {
		res := h.recoverSession(ctx, s)
		report.add(res)
	}
	if report.Checked > 0 {
		h.logger.Warn("stuck sessions recovered",
			zap.Int("checked", report.Checked),
			zap.Int("forced_complete", report.ForcedComplete),
			zap.Int("requeued", report.Requeued),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func (r *SweepReport) add(res RecoveryResult) {
	r.Results = append(r.Results, res)
	switch res.Action {
	case RecoveryForcedComplete:
		r.ForcedComplete++
		r.Recovered++
	case RecoveryRequeued:
		r.Requeued++
		r.Recovered++
	case RecoveryFailed, RecoveryUnrecoverable:
		r.Failed++
	}
}

func (h *HealthChecker) recoverSession(ctx context.Context, s domain.AssignmentSession) RecoveryResult {
	res := RecoveryResult{TeamID: s.TeamID, Status: s.Status}

	if h.queue != nil && h.queue.IsActive(s.TeamID) {
		res.Action = RecoverySkipped
		return res
	}

	switch {
	case s.Status == domain.StatusJustifying && s.HasAssignment():
		if err := h.sessions.UpdateStatus(ctx, s.ID, domain.StatusComplete); err != nil {
			return h.failed(res, err)
		}
		res.Action = RecoveryForcedComplete
	case s.Status == domain.StatusJustifying, s.Status == domain.StatusScoring, s.Status == domain.StatusAssigning:
		if err := h.sessions.UpdateStatus(ctx, s.ID, domain.StatusPending); err != nil {
			return h.failed(res, err)
		}
		h.enqueue(s.TeamID)
		res.Action = RecoveryRequeued
	default:
		res.Action = RecoveryUnrecoverable
		res.Error = fmt.Sprintf("unknown status %q", s.Status)
		h.logger.Error("unrecoverable assignment session", zap.String("team_id", s.TeamID), zap.String("status", string(s.Status)))
	}
	h.metrics.Recovery(res.Action)
	return res
}

func (h *HealthChecker) enqueue(teamID string) {
	if h.queue == nil {
		return
	}
	if !h.queue.Enqueue(teamID) {
		h.logger.Info("team already queued", zap.String("team_id", teamID))
	}
}

func (h *HealthChecker) failed(res RecoveryResult, err error) RecoveryResult {
	res.Action = RecoveryFailed
	res.Error = err.Error()
	h.metrics.Recovery(RecoveryFailed)
	h.logger.Error("session recovery failed", zap.String("team_id", res.TeamID), zap.Error(err))
	return res
}

// RecoverTeams aplica la misma recuperacion a equipos explicitos, sin importar la antiguedad.
// pending se reencola; complete se omite.
func (h *HealthChecker) RecoverTeams(ctx context.Context, teamIDs []string) []RecoveryResult {
	results := make([]RecoveryResult, 0, len(teamIDs))
	for _, id := range teamIDs {
		s, err := h.sessions.GetByTeamID(ctx, id)
		if err != nil {
			res := RecoveryResult{TeamID: id}
			if errors.Is(err, repository.ErrNotFound) {
				res.Action = RecoveryNotFound
				results = append(results, res)
				continue
			}
			results = append(results, h.failed(res, err))
			continue
		}

		switch s.Status {
		case domain.StatusComplete:
			results = append(results, RecoveryResult{TeamID: id, Status: s.Status, Action: RecoverySkipped})
		case domain.StatusPending:
			h.enqueue(id)
			h.metrics.Recovery(RecoveryRequeued)
			results = append(results, RecoveryResult{TeamID: id, Status: s.Status, Action: RecoveryRequeued})
		default:
			results = append(results, h.recoverSession(ctx, s))
		}
	}
	return results
}

// Stats cuenta sesiones por estado y cuantas estan trabadas segun el umbral actual.
func (h *HealthChecker) Stats(ctx context.Context) (HealthStats, error) {
	counts, err := h.sessions.CountByStatus(ctx)
	if err != nil {
		return HealthStats{}, fmt.Errorf("count sessions by status: %w", err)
	}
	stuck, err := h.sessions.ListStuck(ctx, domain.InFlightStatuses, h.now().Add(-h.cfg.StuckThreshold))
	if err != nil {
		return HealthStats{}, fmt.Errorf("list stuck sessions: %w", err)
	}
	stats := HealthStats{Counts: counts, Stuck: len(stuck)}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
