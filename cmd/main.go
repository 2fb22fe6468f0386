package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/routekit/config"
	"github.com/angeloszaimis/routekit/internal/httpserver"
	"github.com/angeloszaimis/routekit/pkg/logger"
	"github.com/angeloszaimis/routekit/pkg/routekit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Gateway stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	app, err := routekit.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("Failed to close decision log", slog.Any("err", err))
		}
	}()

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(app, cfg.Metrics.Path), httpserver.Options{Logger: log})
	if err != nil {
		return err
	}

	app.Start(ctx)

	log.Info("Gateway starting",
		slog.String("addr", cfg.Server.Address),
		slog.String("environment", cfg.Server.Environment),
		slog.Any("middleware", app.Middlewares()))

	err = srv.Run(ctx)
	app.Wait()
	return err
}
