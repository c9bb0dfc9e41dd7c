package service

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchConfig controla la ejecucion por chunks de los metodos batch.
type BatchConfig struct {
	ChunkSize   int
	ChunkDelay  time.Duration
	RetryFailed bool
	// RetryDelay es la espera base antes de la segunda pasada; se le suma jitter en [0, RetryDelay).
	RetryDelay time.Duration
}

// DefaultBatchConfig usa chunks de 10 con 500ms entre chunks y segunda pasada habilitada.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ChunkSize:   10,
		ChunkDelay:  500 * time.Millisecond,
		RetryFailed: true,
		RetryDelay:  time.Second,
	}
}

// BatchSummary resume el resultado de un batch.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type batchOutcome[R any] struct {
	value R
	err   error
}

// runChunked ejecuta fn para cada item en chunks concurrentes. Nunca falla por
// errores parciales: cada item conserva su propio resultado.
func runChunked[T, R any](ctx context.Context, cfg BatchConfig, items []T, fn func(ctx context.Context, item T) (R, error)) ([]batchOutcome[R], BatchSummary) {
	out := make([]batchOutcome[R], len(items))
	pending := make([]int, len(items))
	for i := range items {
		pending[i] = i
	}

	runPass(ctx, cfg, items, pending, out, fn)

	if cfg.RetryFailed {
		var failed []int
		for i, o := range out {
			if o.err != nil {
				failed = append(failed, i)
			}
		}
		if len(failed) > 0 && sleepCtx(ctx, jitter(cfg.RetryDelay)) == nil {
			runPass(ctx, cfg, items, failed, out, fn)
		}
	}

	summary := BatchSummary{Total: len(items)}
	for _, o := range out {
		if o.err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	return out, summary
}

func runPass[T, R any](ctx context.Context, cfg BatchConfig, items []T, indexes []int, out []batchOutcome[R], fn func(ctx context.Context, item T) (R, error)) {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 10
	}
	for start := 0; start < len(indexes); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, cfg.ChunkDelay); err != nil {
				for _, idx := range indexes[start:] {
					out[idx] = batchOutcome[R]{err: err}
				}
				return
			}
		}
		end := min(start+size, len(indexes))

		var g errgroup.Group
		for _, idx := range indexes[start:end] {
			g.Go(func() error {
				v, err := fn(ctx, items[idx])
				out[idx] = batchOutcome[R]{value: v, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int64N(int64(base)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
