package events

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyTeamID se devuelve al notificar sin id de equipo.
var ErrEmptyTeamID = errors.New("events: empty team id")

// TeamCompletionNotifier publica que un equipo alcanzo su cupo y puede entrar al pipeline.
type TeamCompletionNotifier interface {
	NotifyTeamComplete(ctx context.Context, teamID string) error
}

// Enqueuer recibe los equipos completos.
type Enqueuer interface {
	Enqueue(teamID string) bool
}

// DirectNotifier entrega el evento a la cola del mismo proceso.
type DirectNotifier struct {
	queue  Enqueuer
	logger *zap.Logger
}

func NewDirectNotifier(queue Enqueuer, logger *zap.Logger) *DirectNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectNotifier{queue: queue, logger: logger}
}

func (n *DirectNotifier) NotifyTeamComplete(ctx context.Context, teamID string) error {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return ErrEmptyTeamID
	}
	if !n.queue.Enqueue(teamID) {
		n.logger.Debug("team already queued", zap.String("team_id", teamID))
	}
	return nil
}
