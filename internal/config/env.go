// Package config defines environment configuration structs and loaders.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	EngineEnvConfig
	ServerEnvConfig
	RedisEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineEnvConfig holds the filesystem layout the engine reads and writes.
type EngineEnvConfig struct {
	DataDir     string `env:"FUSED_DATA_DIR" envDefault:"data"`
	RegistryDir string `env:"FUSED_REGISTRY_DIR" envDefault:"data/model_registry"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
}

// ServerEnvConfig configures the API server.
type ServerEnvConfig struct {
	Address       string `env:"FUSED_API_ADDR" envDefault:"127.0.0.1"`
	Port          int    `env:"FUSED_API_PORT" envDefault:"8080"`
	BodySizeLimit int    `env:"FUSED_BODY_LIMIT" envDefault:"33554432"`
	JobStore      string `env:"FUSED_JOB_STORE" envDefault:"memory"` // memory | redis
}

// RedisEnvConfig configures the optional Redis-backed job store.
type RedisEnvConfig struct {
	RedisHost     string        `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	JobTTL        time.Duration `env:"FUSED_JOB_TTL" envDefault:"24h"`
}
