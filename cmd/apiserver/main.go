package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const dbStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file; empty reads AMI_* environment variables only")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(loggerConfig(cfg.Log))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logging.SetDefault(logger)

	logger.Info("starting apiserver",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.String("build_date", BuildDate),
	)

	if configPath != "" {
		watchLogLevel(configPath, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", logging.Err(err))
		return err
	}
	defer app.Close()

	go recordDBStats(ctx, app)

	errCh := make(chan error, 1)
	go func() { errCh <- app.server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", logging.Err(err))
			return err
		}
	}

	if err := app.server.Stop(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", logging.Err(err))
		return err
	}
	logger.Info("apiserver stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func loggerConfig(c config.LogConfig) logging.LogConfig {
	return logging.LogConfig{
		Level:       c.Level,
		Format:      c.Format,
		OutputPaths: c.OutputPaths,
		File: logging.FileConfig{
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}

// watchLogLevel applies log.level edits without a restart. Other settings
// need one.
func watchLogLevel(path string, logger logging.Logger) {
	setter, ok := logger.(logging.LevelSetter)
	if !ok {
		return
	}
	err := config.Watch(path,
		func(c *config.Config) {
			setter.SetLevel(c.Log.Level)
			logger.Info("log level reloaded", logging.String("level", c.Log.Level))
		},
		func(err error) {
			logger.Warn("ignoring invalid config revision", logging.Err(err))
		},
	)
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

func recordDBStats(ctx context.Context, a *app) {
	if a.metrics == nil {
		return
	}
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prometheus.RecordDBStats(a.metrics, "postgres", a.conn.Stats())
		}
	}
}
