package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studytracker/internal/auth"
	"studytracker/internal/config"
	"studytracker/internal/database"
	"studytracker/internal/email"
	"studytracker/internal/logging"
	redisx "studytracker/internal/redis"
	"studytracker/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	redisClient, err := redisx.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	var mailer auth.Mailer
	transport, err := email.New(cfg.Email)
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		logger.Warn("email is not configured; password reset codes cannot be delivered")
		mailer = email.NewSender(cfg.Email)
	case err != nil:
		return fmt.Errorf("email: %w", err)
	default:
		mailer = transport
	}

	api := server.NewServer(
		cfg,
		auth.NewUserRepository(db),
		auth.NewRedisOTPStore(redisClient, cfg.OTP.TTL),
		mailer,
		auth.NewBcryptHasher(),
		logger,
		server.WithRateLimiter(auth.NewRateLimiter(redisClient)),
		server.WithAuditLog(auth.NewAuditLogger(redisClient)),
		server.WithHealthCheck("postgres", func(ctx context.Context) error { return db.Ping(ctx) }),
		server.WithHealthCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}
