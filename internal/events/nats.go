package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject es el subject por defecto de equipos completos.
const DefaultSubject = "teams.completed"

// DefaultQueueGroup reparte cada evento a una sola instancia suscripta.
const DefaultQueueGroup = "assignment-workers"

// CompletionEvent es el payload publicado en NATS.
type CompletionEvent struct {
	TeamID     string    `json:"team_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Connect abre una conexion NATS con reconexion.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// NATSPublisher publica equipos completos en un subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject, now: time.Now}
}

func (p *NATSPublisher) NotifyTeamComplete(ctx context.Context, teamID string) error {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return ErrEmptyTeamID
	}
	data, err := json.Marshal(CompletionEvent{TeamID: teamID, OccurredAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}
	return nil
}

// NATSSubscriber consume equipos completos con un queue group y los encola.
type NATSSubscriber struct {
	sub    *nats.Subscription
	logger *zap.Logger
}

// Subscribe registra el consumidor. Mensajes invalidos se descartan con un log.
func Subscribe(conn *nats.Conn, subject, queueGroup string, queue Enqueuer, logger *zap.Logger) (*NATSSubscriber, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		var evt CompletionEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Warn("invalid completion event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		teamID := strings.TrimSpace(evt.TeamID)
		if teamID == "" {
			logger.Warn("completion event without team id", zap.String("subject", msg.Subject))
			return
		}
		if !queue.Enqueue(teamID) {
			logger.Debug("team already queued", zap.String("team_id", teamID))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &NATSSubscriber{sub: sub, logger: logger}, nil
}

// Close drena la suscripcion para no perder mensajes ya recibidos.
func (s *NATSSubscriber) Close() error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}
