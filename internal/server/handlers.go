package server

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gridwatch/fused/internal/dataset"
	"github.com/gridwatch/fused/internal/inference"
	"github.com/gridwatch/fused/internal/jobstore"
	"github.com/gridwatch/fused/internal/pipeline"
	"github.com/gridwatch/fused/internal/registry"
)

// TrainRequest starts an asynchronous training job. DataPath is resolved
// under the configured data directory. Nil overrides keep the mode defaults.
type TrainRequest struct {
	DataPath      string             `json:"data_path"`
	Mode          string             `json:"mode,omitempty"` // full | fast
	Contamination *float64           `json:"contamination,omitempty"`
	Seed          *uint64            `json:"seed,omitempty"`
	UsePCA        *bool              `json:"use_pca,omitempty"`
	FAComponents  *int               `json:"fa_components,omitempty"`
	FuseWeights   map[string]float64 `json:"fuse_weights,omitempty"`
}

// TrainAccepted is the immediate response to a train request.
type TrainAccepted struct {
	JobID string `json:"job_id"`
}

// TrainOutcome lands on the job status once the run finishes.
type TrainOutcome struct {
	ModelID        string  `json:"model_id"`
	Version        int     `json:"version"`
	CompositeScore any     `json:"composite_score"`
	Flagged        int     `json:"flagged"`
	DurationSec    float64 `json:"duration_sec"`
}

func (s *Server) startTrain(c *fiber.Ctx) error {
	req := TrainRequest{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(respond(fiber.Map{}, err))
	}
	if req.DataPath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(respond(fiber.Map{}, errors.New("data_path is required")))
	}
	mode := req.Mode
	if mode == "" {
		mode = "full"
	}
	if mode != "full" && mode != "fast" {
		return c.Status(fiber.StatusBadRequest).JSON(respond(fiber.Map{}, errors.New("mode must be full or fast")))
	}

	cfg := trainConfig(req, mode)
	csvPath := filepath.Join(s.cfg.DataDir, filepath.Clean(req.DataPath))

	jobID := uuid.NewString()
	status := jobstore.Status{
		JobID:     jobID,
		Status:    jobstore.StatusQueued,
		Progress:  0,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
	if err := s.jobs.Init(c.Context(), status); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}

	go s.runTrainJob(jobID, csvPath, mode, cfg)

	log.Info().Msgf("train job %s queued on %s (mode=%s)", jobID, req.DataPath, mode)
	return c.Status(fiber.StatusAccepted).JSON(respond(TrainAccepted{JobID: jobID}, nil))
}

// trainConfig maps the request to a pipeline config. Fast mode trades the
// two slowest detectors and most of the audit for turnaround.
func trainConfig(req TrainRequest, mode string) pipeline.Config {
	opts := []pipeline.Option{}
	if mode == "fast" {
		opts = append(opts,
			pipeline.WithAutoencoder(false),
			pipeline.WithOCSVM(false),
			pipeline.WithAudit(4, 2, 2),
		)
	}
	if req.Contamination != nil {
		opts = append(opts, pipeline.WithContamination(*req.Contamination))
	}
	if req.Seed != nil {
		opts = append(opts, pipeline.WithSeed(*req.Seed))
	}
	if req.UsePCA != nil {
		opts = append(opts, pipeline.WithPCA(*req.UsePCA))
	}
	if req.FAComponents != nil {
		opts = append(opts, pipeline.WithFactorModel(*req.FAComponents))
	}
	if req.FuseWeights != nil {
		opts = append(opts, pipeline.WithFuseWeights(req.FuseWeights))
	}
	return pipeline.NewConfig(opts...)
}

// runTrainJob owns the job lifecycle in a background goroutine.
func (s *Server) runTrainJob(jobID, csvPath, mode string, cfg pipeline.Config) {
	ctx := context.Background()
	fail := func(err error) {
		log.Error().Err(err).Msgf("train job %s failed", jobID)
		now := time.Now().UTC()
		_ = s.jobs.Update(ctx, jobID, func(st *jobstore.Status) {
			st.Status = jobstore.StatusFailed
			st.Error = err.Error()
			st.FinishedAt = &now
		})
	}

	_ = s.jobs.Update(ctx, jobID, func(st *jobstore.Status) {
		st.Status = jobstore.StatusRunning
	})

	frame, err := dataset.ReadCSV(csvPath)
	if err != nil {
		fail(err)
		return
	}

	onStage := func(stage pipeline.Stage, progress float64) {
		_ = s.jobs.Update(ctx, jobID, func(st *jobstore.Status) {
			st.Stage = string(stage)
			st.Progress = progress
		})
	}
	res, err := pipeline.Run(ctx, frame, cfg, onStage)
	if err != nil {
		fail(err)
		return
	}

	card, err := pipeline.PersistRun(s.store, res, cfg, mode, filepath.Base(csvPath))
	if err != nil {
		fail(err)
		return
	}

	now := time.Now().UTC()
	_ = s.jobs.Update(ctx, jobID, func(st *jobstore.Status) {
		st.Status = jobstore.StatusCompleted
		st.Progress = 1
		st.FinishedAt = &now
		st.Result = TrainOutcome{
			ModelID:        card.ModelID,
			Version:        card.Version,
			CompositeScore: card.CompositeScore,
			Flagged:        flaggedCount(res),
			DurationSec:    res.Duration.Seconds(),
		}
	})
	log.Info().Msgf("train job %s completed as model v%d", jobID, card.Version)
}

func flaggedCount(res *pipeline.RunResult) int {
	n := 0
	for _, f := range res.Fusion.Flags {
		n += f
	}
	return n
}

func (s *Server) trainStatus(c *fiber.Ctx) error {
	st, err := s.jobs.Get(c.Context(), c.Params("id"))
	if err != nil {
		var nf *jobstore.ErrNotFound
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(respond(fiber.Map{}, err))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}
	return c.JSON(respond(st, nil))
}

func (s *Server) listModels(c *fiber.Ctx) error {
	hist, err := s.store.History()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}
	return c.JSON(respond(hist, nil))
}

func (s *Server) currentModel(c *fiber.Ctx) error {
	card, err := s.store.CurrentCard()
	if err != nil {
		if errors.Is(err, registry.ErrNoModels) || errors.Is(err, registry.ErrNoActiveModel) {
			return c.Status(fiber.StatusNotFound).JSON(respond(fiber.Map{}, err))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}
	return c.JSON(respond(card, nil))
}

func (s *Server) activateModel(c *fiber.Ctx) error {
	version, err := c.ParamsInt("version")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(respond(fiber.Map{}, err))
	}
	card, err := s.store.SetActiveVersion(version)
	if err != nil {
		if errors.Is(err, registry.ErrVersionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(respond(fiber.Map{}, err))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}
	log.Info().Msgf("model v%d activated", card.Version)
	return c.JSON(respond(card, nil))
}

// scoreBatch takes a raw CSV body, scores it with the active model, and
// returns the ranked CSV. top_percent is an optional query knob.
func (s *Server) scoreBatch(c *fiber.Ctx) error {
	bundle, err := s.store.LoadActiveBundle()
	if err != nil {
		if errors.Is(err, registry.ErrNoModels) || errors.Is(err, registry.ErrNoActiveModel) {
			return c.Status(fiber.StatusConflict).JSON(respond(fiber.Map{}, err))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}

	frame, err := dataset.ReadCSVFrom(bytes.NewReader(c.Body()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(respond(fiber.Map{}, err))
	}

	opts := inference.DefaultOptions()
	if tp := c.QueryFloat("top_percent"); tp > 0 {
		opts.TopPercent = tp
	}
	scored, err := inference.Score(frame, bundle, opts)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(respond(fiber.Map{}, err))
	}

	var buf bytes.Buffer
	if err := scored.WriteCSVTo(&buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(respond(fiber.Map{}, err))
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	return c.Send(buf.Bytes())
}
