// Package server exposes the training pipeline, the model registry, and
// batch scoring over HTTP.
package server

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/gridwatch/fused/internal/config"
	"github.com/gridwatch/fused/internal/jobstore"
	"github.com/gridwatch/fused/internal/registry"
)

// Server wires the HTTP surface to the registry and the job store.
type Server struct {
	App   *fiber.App
	cfg   *config.AppConfig
	store *registry.Store
	jobs  jobstore.Store
}

// StdResponse is the uniform response envelope.
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error"`
}

func respond[T any](body T, err error) StdResponse[T] {
	if err != nil {
		msg := err.Error()
		return StdResponse[T]{Body: body, Error: &msg}
	}
	return StdResponse[T]{Body: body}
}

func NewServer(cfg *config.AppConfig, store *registry.Store, jobs jobstore.Store) *Server {
	app := fiber.New(fiber.Config{
		Prefork:      false,
		ErrorHandler: fiberErrHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    cfg.BodySizeLimit,
	})
	app.Use(recover.New())
	app.Use(compress.New())

	s := &Server{App: app, cfg: cfg, store: store, jobs: jobs}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(respond(fiber.Map{"status": "ok"}, nil))
	})

	api := app.Group("/api")
	api.Post("/train", s.startTrain)
	api.Get("/train/:id", s.trainStatus)
	api.Get("/models", s.listModels)
	api.Get("/models/current", s.currentModel)
	api.Post("/models/:version/activate", s.activateModel)
	api.Post("/score", s.scoreBatch)

	return s
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("request failed")
	return ctx.Status(code).JSON(respond(fiber.Map{}, err))
}

func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	log.Fatal().
		Err(s.App.Listen(addr)).
		Msg("server failed to start")
}
