package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"team-roles/internal/domain"
	"team-roles/internal/service"
)

// AssignmentReader agrupa las operaciones del processor usadas por la API.
type AssignmentReader interface {
	GetAssignment(ctx context.Context, teamID string) (service.AssignmentView, error)
	RegenerateJustifications(ctx context.Context, teamID string) (domain.TeamAssignment, error)
}

// Enqueuer es la admision manual a la cola.
type Enqueuer interface {
	Enqueue(teamID string) bool
}

// AssignmentHandler mantiene dependencias para endpoints de asignaciones.
type AssignmentHandler struct {
	logger      *zap.Logger
	assignments AssignmentReader
	queue       Enqueuer
}

func NewAssignmentHandler(logger *zap.Logger, assignments AssignmentReader, queue Enqueuer) *AssignmentHandler {
	return &AssignmentHandler{logger: logger, assignments: assignments, queue: queue}
}

// Enqueue maneja POST /assignments/:teamId/enqueue.
func (h *AssignmentHandler) Enqueue(c *gin.Context) {
	teamID := c.Param("teamId")
	accepted := h.queue.Enqueue(teamID)
	c.JSON(http.StatusAccepted, gin.H{"team_id": teamID, "enqueued": accepted})
}

// Get maneja GET /assignments/:teamId.
func (h *AssignmentHandler) Get(c *gin.Context) {
	view, err := h.assignments.GetAssignment(c.Request.Context(), c.Param("teamId"))
	if err != nil {
		writeServiceError(c, h.logger, err, "could not load assignment")
		return
	}
	c.JSON(http.StatusOK, view)
}

// RegenerateJustifications maneja POST /assignments/:teamId/justifications.
func (h *AssignmentHandler) RegenerateJustifications(c *gin.Context) {
	assignment, err := h.assignments.RegenerateJustifications(c.Request.Context(), c.Param("teamId"))
	if err != nil {
		writeServiceError(c, h.logger, err, "could not regenerate justifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": assignment})
}
