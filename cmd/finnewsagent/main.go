package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinNewsAgent/internal/app"
	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/logging"
)

var (
	configPath = flag.String("config", os.Getenv(config.PathEnv), "YAML configuration file (optional)")
	once       = flag.Bool("once", false, "run a single cycle and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	if *once {
		err = application.RunOnce(ctx)
	} else {
		err = application.Run(ctx)
	}
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("shutdown incomplete")
	}
	if err != nil {
		logger.Error().Err(err).Msg("agent stopped")
		os.Exit(1)
	}
	logger.Info().Msg("agent stopped")
}
