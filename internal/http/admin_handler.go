package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"team-roles/internal/domain"
	"team-roles/internal/service"
)

// QueueInspector expone el estado de la cola.
type QueueInspector interface {
	Status() service.QueueStatus
	IsActive(teamID string) bool
}

// BatchProcessor corre el pipeline de varios equipos por fuera de la cola.
type BatchProcessor interface {
	ProcessTeams(ctx context.Context, teamIDs []string) []service.TeamProcessResult
}

// maxBatchTeams acota POST /admin/process: el lote no respeta MaxConcurrent.
const maxBatchTeams = 50

// HealthOperator agrupa las operaciones del health checker usadas por la API.
type HealthOperator interface {
	RecoverTeams(ctx context.Context, teamIDs []string) []service.RecoveryResult
	Stats(ctx context.Context) (service.HealthStats, error)
	SweepOnce(ctx context.Context) (service.SweepReport, error)
}

// AdminHandler mantiene dependencias para endpoints de operacion.
type AdminHandler struct {
	logger *zap.Logger
	queue  QueueInspector
	health HealthOperator
	batch  BatchProcessor
}

func NewAdminHandler(logger *zap.Logger, queue QueueInspector, health HealthOperator, batch BatchProcessor) *AdminHandler {
	return &AdminHandler{logger: logger, queue: queue, health: health, batch: batch}
}

// QueueStatus maneja GET /admin/queue.
func (h *AdminHandler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Status())
}

// Recover maneja POST /admin/recover.
func (h *AdminHandler) Recover(c *gin.Context) {
	var req struct {
		TeamIDs []string `json:"team_ids" binding:"required,min=1,dive,required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid recover request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	results := h.health.RecoverTeams(c.Request.Context(), req.TeamIDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type processResult struct {
	TeamID     string                 `json:"team_id"`
	Assignment *domain.TeamAssignment `json:"assignment,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Process maneja POST /admin/process: puntua y asigna los equipos en lote, con
// justificaciones en background. Los equipos que la cola tiene activos se omiten.
func (h *AdminHandler) Process(c *gin.Context) {
	var req struct {
		TeamIDs []string `json:"team_ids" binding:"required,min=1,dive,required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid process request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.TeamIDs) > maxBatchTeams {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many teams"})
		return
	}

	results := make([]processResult, len(req.TeamIDs))
	var run []string
	var runIdx []int
	seen := make(map[string]struct{}, len(req.TeamIDs))
	for i, id := range req.TeamIDs {
		results[i].TeamID = id
		if _, dup := seen[id]; dup {
			results[i].Error = "duplicate team id"
			continue
		}
		seen[id] = struct{}{}
		if h.queue.IsActive(id) {
			results[i].Error = "team is in the assignment queue"
			continue
		}
		run = append(run, id)
		runIdx = append(runIdx, i)
	}

	if len(run) > 0 {
		for k, res := range h.batch.ProcessTeams(c.Request.Context(), run) {
			i := runIdx[k]
			results[i].Assignment = res.Assignment
			if res.Err != nil {
				results[i].Error = res.Err.Error()
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Sweep maneja POST /admin/sweep.
func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.health.SweepOnce(c.Request.Context())
	if err != nil {
		h.logger.Error("manual sweep failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not run sweep"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Health maneja GET /admin/health.
func (h *AdminHandler) Health(c *gin.Context) {
	stats, err := h.health.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("health stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load health stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": stats, "queue": h.queue.Status()})
}
