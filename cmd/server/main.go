package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/issueflow/internal/config"
	"github.com/garyjia/issueflow/internal/container"
	"github.com/garyjia/issueflow/pkg/utils"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to config.yaml (defaults and ISSUEFLOW_* env vars apply without one)")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "issueflow",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting issue workflow service",
		zap.String("version", version),
		zap.String("workflow", cfg.Workflow.Name),
		zap.Bool("autoplay", cfg.Workflow.Autoplay),
		zap.Bool("http", cfg.Server.Enabled))

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	if srv := c.Server(); srv != nil {
		logger.Info("HTTP API listening", zap.String("address", srv.ListenAddr()))
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := c.Close(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		os.Exit(1)
	}

	snap := c.Runner().Snapshot()
	logger.Info("Service stopped",
		zap.String("final_state", snap.State.String()),
		zap.Int64("transitions", snap.Transitions))
}
