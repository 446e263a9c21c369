package main

import (
	"context"
	"flag"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gridwatch/fused/internal/config"
	"github.com/gridwatch/fused/internal/dataset"
	"github.com/gridwatch/fused/internal/pipeline"
	"github.com/gridwatch/fused/internal/registry"
	"github.com/gridwatch/fused/internal/utils/logger"
)

func main() {
	logger.Init()

	dataPath := flag.String("data", "", "path to the input CSV")
	mode := flag.String("mode", "full", "training mode: full | fast")
	contamination := flag.Float64("contamination", 0.05, "expected anomaly fraction in (0,1)")
	seed := flag.Uint64("seed", 42, "random seed")
	usePCA := flag.Bool("pca", true, "reduce with PCA at 95% retained variance")
	faComponents := flag.Int("fa", 0, "use a probabilistic factor model with this many components instead of PCA")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal().Msg("-data is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	opts := []pipeline.Option{
		pipeline.WithContamination(*contamination),
		pipeline.WithSeed(*seed),
		pipeline.WithPCA(*usePCA),
	}
	if *faComponents > 0 {
		opts = append(opts, pipeline.WithFactorModel(*faComponents))
	}
	if *mode == "fast" {
		opts = append(opts,
			pipeline.WithAutoencoder(false),
			pipeline.WithOCSVM(false),
			pipeline.WithAudit(4, 2, 2),
		)
	}
	runCfg := pipeline.NewConfig(opts...)

	frame, err := dataset.ReadCSV(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to read %s", *dataPath)
	}
	log.Info().Msgf("loaded %d rows from %s", frame.NumRows(), *dataPath)

	onStage := func(stage pipeline.Stage, progress float64) {
		log.Info().Msgf("stage %s (%.0f%%)", stage, progress*100)
	}
	res, err := pipeline.Run(context.Background(), frame, runCfg, onStage)
	if err != nil {
		log.Fatal().Err(err).Msg("training run failed")
	}

	store := registry.NewStore(cfg.RegistryDir)
	card, err := pipeline.PersistRun(store, res, runCfg, *mode, filepath.Base(*dataPath))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to persist run")
	}

	log.Info().
		Int("version", card.Version).
		Float64("composite", float64(card.CompositeScore)).
		Float64("duration_sec", card.DurationSec).
		Msgf("model %s trained and activated", card.ModelID)
}
