package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/config"
	"github.com/hamed0406/healthagent/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "healthagent:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Options{
		Dir:    cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Stderr: cfg.Log.Stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close_error", zap.Error(err))
		}
	}()

	logger.Info("agent_started",
		zap.String("config", *cfgPath),
		zap.Int("targets", len(c.Targets)),
		zap.Int("webhooks", len(c.Subs)),
		zap.String("store", cfg.Store.Driver),
	)
	err = c.Run(ctx)
	logger.Info("agent_stopped", zap.Error(err))
	return err
}
