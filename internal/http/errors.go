package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"team-roles/internal/service"
)

// writeServiceError traduce errores del pipeline a codigos HTTP.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrTeamNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
	case errors.Is(err, service.ErrTeamNotComplete):
		c.JSON(http.StatusConflict, gin.H{"error": "team is not complete"})
	case errors.Is(err, service.ErrInvalidAssignment):
		logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "stored assignment does not match the team"})
	default:
		logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
