package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// PipelineEnvPrefix es el prefijo de las variables que ajustan el pipeline.
const PipelineEnvPrefix = "PIPELINE_"

// Pipeline agrupa los parametros de cola, scorer, justifier y health checker.
type Pipeline struct {
	Queue     QueueSettings    `koanf:"queue"`
	Scorer    LLMStageSettings `koanf:"scorer"`
	Justifier LLMStageSettings `koanf:"justifier"`
	Health    HealthSettings   `koanf:"health"`
}

type QueueSettings struct {
	MaxConcurrent   int           `koanf:"max_concurrent"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBaseDelay  time.Duration `koanf:"retry_base_delay"`
	RetryMultiplier float64       `koanf:"retry_multiplier"`
}

// LLMStageSettings aplica tanto a scoring como a justificaciones; Timeout solo lo usa el justifier.
type LLMStageSettings struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	BatchSize   int           `koanf:"batch_size"`
	ChunkDelay  time.Duration `koanf:"chunk_delay"`
	RetryFailed bool          `koanf:"retry_failed"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

type HealthSettings struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	StuckThreshold time.Duration `koanf:"stuck_threshold"`
}

// DefaultPipeline devuelve los valores por defecto.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Queue: QueueSettings{
			MaxConcurrent:   3,
			MaxRetries:      3,
			RetryBaseDelay:  5 * time.Second,
			RetryMultiplier: 2,
		},
		Scorer: LLMStageSettings{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			BatchSize:   10,
			ChunkDelay:  500 * time.Millisecond,
			RetryFailed: true,
			RetryDelay:  time.Second,
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Justifier: LLMStageSettings{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			BatchSize:   10,
			ChunkDelay:  500 * time.Millisecond,
			RetryFailed: true,
			RetryDelay:  time.Second,
			Temperature: 0.7,
			MaxTokens:   3000,
			Timeout:     2 * time.Minute,
		},
		Health: HealthSettings{
			Enabled:        true,
			Interval:       2 * time.Minute,
			StuckThreshold: 5 * time.Minute,
		},
	}
}

// LoadPipeline combina, de menor a mayor precedencia:
//  1. DefaultPipeline()
//  2. archivo YAML en path, si no esta vacio
//  3. variables PIPELINE_<SECCION>_<CAMPO>, por ejemplo PIPELINE_QUEUE_MAX_CONCURRENT
func LoadPipeline(path string) (Pipeline, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Pipeline{}, fmt.Errorf("load pipeline config %s: %w", path, err)
		}
	}

	// PIPELINE_QUEUE_MAX_CONCURRENT -> queue.max_concurrent
	envProvider := env.Provider(PipelineEnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, PipelineEnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Pipeline{}, fmt.Errorf("load pipeline env: %w", err)
	}

	cfg := DefaultPipeline()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Pipeline{}, fmt.Errorf("decode pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Pipeline{}, err
	}
	return cfg, nil
}

// Validate rechaza valores que dejarian al pipeline sin progreso.
func (p Pipeline) Validate() error {
	var errs []error
	if p.Queue.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("queue.max_concurrent must be positive"))
	}
	if p.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("queue.max_retries must not be negative"))
	}
	if p.Queue.RetryMultiplier < 1 {
		errs = append(errs, errors.New("queue.retry_multiplier must be >= 1"))
	}
	if p.Queue.RetryBaseDelay < 0 {
		errs = append(errs, errors.New("queue.retry_base_delay must not be negative"))
	}
	errs = append(errs, p.Scorer.validate("scorer")...)
	errs = append(errs, p.Justifier.validate("justifier")...)
	if p.Justifier.Timeout <= 0 {
		errs = append(errs, errors.New("justifier.timeout must be positive"))
	}
	if p.Health.Enabled {
		if p.Health.Interval <= 0 {
			errs = append(errs, errors.New("health.interval must be positive"))
		}
		if p.Health.StuckThreshold <= 0 {
			errs = append(errs, errors.New("health.stuck_threshold must be positive"))
		}
	}
	return errors.Join(errs...)
}

func (s LLMStageSettings) validate(section string) []error {
	var errs []error
	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s.max_attempts must be >= 1", section))
	}
	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%s.batch_size must be positive", section))
	}
	if s.BaseDelay < 0 || s.ChunkDelay < 0 || s.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("%s delays must not be negative", section))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%s.temperature must be within [0,2]", section))
	}
	if s.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_tokens must be positive", section))
	}
	return errs
}
