package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"team-roles/internal/domain"
	"team-roles/internal/events"
	"team-roles/internal/repository"
)

// TeamReader es la lectura de equipos que necesita el handler.
type TeamReader interface {
	GetByID(ctx context.Context, id string) (domain.Team, error)
}

// TeamHandler expone el disparador de equipo completo.
type TeamHandler struct {
	logger   *zap.Logger
	teams    TeamReader
	notifier events.TeamCompletionNotifier
}

func NewTeamHandler(logger *zap.Logger, teams TeamReader, notifier events.TeamCompletionNotifier) *TeamHandler {
	return &TeamHandler{logger: logger, teams: teams, notifier: notifier}
}

// CompleteTeam maneja POST /teams/:id/complete.
func (h *TeamHandler) CompleteTeam(c *gin.Context) {
	teamID := c.Param("id")
	team, err := h.teams.GetByID(c.Request.Context(), teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		h.logger.Error("get team failed", zap.String("team_id", teamID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load team"})
		return
	}
	if !team.IsComplete {
		c.JSON(http.StatusConflict, gin.H{"error": "team is not complete"})
		return
	}

	if err := h.notifier.NotifyTeamComplete(c.Request.Context(), team.ID); err != nil {
		h.logger.Error("notify team complete failed", zap.String("team_id", teamID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not notify team completion"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"team_id": team.ID, "status": "notified"})
}
