package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aqiq/tims-fiscal/internal/application/fiscal"
	"github.com/aqiq/tims-fiscal/internal/infrastructure/postgres"
	infratims "github.com/aqiq/tims-fiscal/internal/infrastructure/tims"
	httpRouter "github.com/aqiq/tims-fiscal/internal/interfaces/http"
	"github.com/aqiq/tims-fiscal/pkg/config"
	"github.com/aqiq/tims-fiscal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("starting application")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection")
	}
	defer pool.Close()

	queueRepo := postgres.NewQueueRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	signer := infratims.NewHTTPSigner(log.Zerolog())
	dispatcher := fiscal.NewDispatcher(
		queueRepo, invoiceRepo, settingsRepo, txRunner, signer,
		fiscal.Config{
			MaxRetries:  cfg.Fiscal.MaxRetries,
			BackoffBase: cfg.Fiscal.BackoffBase,
		},
		log,
	)
	probe := fiscal.NewProbe(settingsRepo, signer, log)

	// Sweeper: recovers Failed entries whose backoff timer died with a
	// previous process.
	sweeper := fiscal.NewSweeper(dispatcher, fiscal.SweeperConfig{
		Interval: cfg.Fiscal.SweeperInterval,
		Grace:    cfg.Fiscal.SweeperGrace,
	})
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweeper.Run(sweepCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Dispatcher:   dispatcher,
		Probe:        probe,
		QueueRepo:    queueRepo,
		SettingsRepo: settingsRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, stopping server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("application stopped")
}
