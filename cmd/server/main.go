// Command server runs the opsdash HTTP API.
//
// Configuration comes from an optional YAML file (-config, default
// config.yml) and the environment; see internal/config. A .env file in the
// working directory is loaded first when present.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/opsdash/internal/config"
	"github.com/sakif/opsdash/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// SIGINT / SIGTERM cancel ctx, which starts the graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		logger.Error("closing server", slog.String("error", err.Error()))
	}
	if runErr != nil {
		logger.Error("server failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
}
