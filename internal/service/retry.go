package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy describe un reintento exponencial: BaseDelay se duplica en cada intento.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy son 3 intentos con 1s de base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

var retryableMarkers = []string{
	"network",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"rate limit",
	"429",
	"status=5",
	"status 5",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"eof",
	"overloaded",
	"temporarily unavailable",
}

// IsRetryableError clasifica un error como transitorio comparando su mensaje
// contra marcadores de red, timeout, rate-limit y 5xx. Los 5xx se reconocen por
// "status=5xx" o el texto del estado, nunca por los digitos sueltos: un puntaje
// de 500 en un error de validacion no es transitorio.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry ejecuta op con backoff exponencial. Los errores no transitorios cortan
// en el primer intento; al agotar intentos se devuelve el ultimo error.
func withRetry[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, opName string, op func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = policy.BaseDelay << 10
	eb.MaxElapsedTime = 0
	if policy.BaseDelay == 0 {
		eb.InitialInterval = time.Nanosecond
		eb.MaxInterval = time.Nanosecond
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.MaxAttempts-1)), ctx)

	attempt := 0
	result, err := backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryableError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, bo)
	if err != nil && logger != nil {
		logger.Warn("operation failed after retries",
			zap.String("op", opName),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return result, err
}
