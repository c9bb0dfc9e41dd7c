package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort          string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	LLMAPIKey         string        `env:"LLM_API_KEY,required,notEmpty"`
	LLMBaseURL        string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	NATSURL           string        `env:"NATS_URL"`
	NATSSubject       string        `env:"NATS_SUBJECT" envDefault:"teams.completed"`
	AdminJWTSecret    string        `env:"ADMIN_JWT_SECRET"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	PipelineConfig    string        `env:"PIPELINE_CONFIG"`
	RoleCatalog       string        `env:"ROLE_CATALOG"`
	MigrationsEnabled bool          `env:"MIGRATIONS_ENABLED" envDefault:"true"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
