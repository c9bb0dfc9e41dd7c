package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TeamLock evita que dos instancias ejecuten el pipeline del mismo equipo a la vez.
type TeamLock interface {
	// TryLock devuelve ok=false solo si otra instancia tiene el lock.
	TryLock(ctx context.Context, teamID string) (unlock func(), ok bool)
}

type noopTeamLock struct{}

// NewNoopTeamLock devuelve un lock que siempre se concede; se usa sin Redis.
func NewNoopTeamLock() TeamLock { return noopTeamLock{} }

func (noopTeamLock) TryLock(context.Context, string) (func(), bool) { return func() {}, true }

const redisUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisTeamLock struct {
	client redisLockClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisTeamLock usa SET NX PX con token propio y libera con compare-and-delete.
// Ante errores de Redis concede el lock (fail-open). client nil devuelve el lock noop.
func NewRedisTeamLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) TeamLock {
	if client == nil {
		return NewNoopTeamLock()
	}
	return newRedisTeamLock(client, ttl, logger)
}

func newRedisTeamLock(client redisLockClient, ttl time.Duration, logger *zap.Logger) *redisTeamLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisTeamLock{
		client: client,
		ttl:    ttl,
		prefix: "assign:lock:",
		logger: logger,
	}
}

func (l *redisTeamLock) TryLock(ctx context.Context, teamID string) (func(), bool) {
	if l == nil || l.client == nil {
		return func() {}, true
	}
	key := l.prefix + teamID
	token := uuid.NewString()

	setCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	acquired, err := l.client.SetNX(setCtx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Warn("team lock unavailable, continuing without it", zap.String("team_id", teamID), zap.Error(err))
		return func() {}, true
	}
	if !acquired {
		return nil, false
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := l.client.Eval(releaseCtx, redisUnlockScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("team lock release failed", zap.String("team_id", teamID), zap.Error(err))
		}
	}, true
}
