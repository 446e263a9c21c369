package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gridwatch/fused/internal/config"
	"github.com/gridwatch/fused/internal/jobstore"
	"github.com/gridwatch/fused/internal/registry"
	"github.com/gridwatch/fused/internal/server"
	"github.com/gridwatch/fused/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("starting fused api server")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	var jobs jobstore.Store
	switch cfg.JobStore {
	case "redis":
		rs, err := jobstore.NewRedisStore(&cfg.RedisEnvConfig)
		if err != nil {
			log.Error().Err(err).Msg("failed to init redis job store, falling back to memory")
			jobs = jobstore.NewMemoryStore()
		} else {
			defer rs.Close()
			jobs = rs
		}
	default:
		jobs = jobstore.NewMemoryStore()
	}

	store := registry.NewStore(cfg.RegistryDir)
	srv := server.NewServer(cfg, store, jobs)
	srv.Start()
}
