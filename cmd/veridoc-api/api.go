// Package main provides the VeriDoc API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/config"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/services"
	"github.com/veridoc/veridoc/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	config      config.EngineConfig
	clock       clock.Clock
	signatures  services.SignatureVerifier
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	cfg config.EngineConfig,
	clk clock.Clock,
	identityURL string,
) (*API, error) {
	signatures, err := services.NewManifestVerifier(services.NewHTTPCredentialChecker(identityURL))
	if err != nil {
		return nil, err
	}

	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		config:      cfg,
		clock:       clk,
		signatures:  signatures,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	lockService := services.NewLocks(a.persistence, a.config, a.clock, a.eventBus, a.logger)
	editingService := services.NewEditing(a.persistence, a.clock, a.eventBus, a.logger)
	transitionService := services.NewTransitions(a.persistence, a.clock, a.signatures, a.eventBus, a.logger)
	reviewService := services.NewReview(a.persistence, a.clock, a.logger)

	handlers := web.NewAPIHandlers(lockService, editingService, transitionService, reviewService, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("VeriDoc API")
	})

	d := app.Group("/documents")
	d.Get("/:documentId/versions", handlers.ListVersions)
	d.Get("/:documentId/versions/latest", handlers.GetLatestVersion)

	v := app.Group("/versions")
	v.Get("/:id", handlers.GetVersion)

	// Edit lock endpoints:
	v.Get("/:id/lock", handlers.InspectLock)
	v.Post("/:id/lock", handlers.AcquireLock)
	v.Post("/:id/lock/heartbeat", handlers.Heartbeat)
	v.Delete("/:id/lock", handlers.ReleaseLock)
	v.Delete("/:id/lock/force", handlers.ForceReleaseLock)

	// Content and workflow endpoints:
	v.Put("/:id/content", handlers.SaveContent)
	v.Post("/:id/transitions", handlers.ApplyTransition)
	v.Post("/:id/versions", handlers.CreateVersion)

	// Review endpoints:
	v.Post("/:id/comments", handlers.AddComment)
	v.Get("/:id/comments", handlers.ListComments)
	v.Post("/:id/views", handlers.RecordView)
	v.Get("/:id/audit", handlers.GetAuditTrail)

	app.Post("/comments/:commentId/resolve", handlers.ResolveComment)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	lockService := services.NewLocks(a.persistence, a.config, a.clock, a.eventBus, a.logger)
	sweeper := services.NewSweeper(lockService, a.config.SweeperSchedule, a.logger)

	err := sweeper.Start(ctx)
	if err != nil {
		return err
	}

	defer sweeper.Stop()

	app := a.App()

	err = app.Listen(":" + strconv.Itoa(port))

	return err
}
