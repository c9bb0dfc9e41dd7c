package service

import "team-roles/internal/config"

// QueueConfigFrom traduce la seccion queue del pipeline.
func QueueConfigFrom(s config.QueueSettings) QueueConfig {
	return QueueConfig{
		MaxConcurrent:   s.MaxConcurrent,
		MaxRetries:      s.MaxRetries,
		RetryBaseDelay:  s.RetryBaseDelay,
		RetryMultiplier: s.RetryMultiplier,
	}
}

// ScorerConfigFrom traduce la seccion scorer del pipeline.
func ScorerConfigFrom(s config.LLMStageSettings) ScorerConfig {
	return ScorerConfig{
		Retry:       RetryPolicy{MaxAttempts: s.MaxAttempts, BaseDelay: s.BaseDelay},
		Batch:       batchConfigFrom(s),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}
}

// JustifierConfigFrom traduce la seccion justifier del pipeline.
func JustifierConfigFrom(s config.LLMStageSettings) JustifierConfig {
	return JustifierConfig{
		Retry:       RetryPolicy{MaxAttempts: s.MaxAttempts, BaseDelay: s.BaseDelay},
		Batch:       batchConfigFrom(s),
		Timeout:     s.Timeout,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}
}

// HealthConfigFrom traduce la seccion health del pipeline.
func HealthConfigFrom(s config.HealthSettings) HealthConfig {
	return HealthConfig{Interval: s.Interval, StuckThreshold: s.StuckThreshold}
}

func batchConfigFrom(s config.LLMStageSettings) BatchConfig {
	return BatchConfig{
		ChunkSize:   s.BatchSize,
		ChunkDelay:  s.ChunkDelay,
		RetryFailed: s.RetryFailed,
		RetryDelay:  s.RetryDelay,
	}
}
