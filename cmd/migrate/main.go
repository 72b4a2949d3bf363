package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studytracker/internal/config"
	"studytracker/internal/database"
	"studytracker/internal/logging"
	"studytracker/migrations"
)

type migrateConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	// Dir overrides the migrations compiled into the binary.
	Dir string `env:"MIGRATIONS_DIR"`
	Log config.LogConfig
}

func main() {
	_ = godotenv.Load()

	var cfg migrateConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.File = ""

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("migration failed", zap.Error(err))
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg migrateConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var source fs.FS = migrations.FS
	if cfg.Dir != "" {
		source = os.DirFS(cfg.Dir)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{MaxConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.ApplyMigrations(ctx, db, source, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", zap.Int("applied", len(applied)))
	return nil
}
