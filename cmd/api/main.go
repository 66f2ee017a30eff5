package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"faceattend/internal/app"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("http server failed")
	}
}

func run(cfg config.App, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SeedAdmin(ctx); err != nil {
		return err
	}

	if !cfg.FaceSkip {
		if err := a.Face.Health(ctx); err != nil {
			logger.WithError(err).Warn("face service not available")
		}
	}

	checks := map[string]handler.HealthCheck{
		"face": func(ctx context.Context) bool { return cfg.FaceSkip || a.Face.Health(ctx) == nil },
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}

	h := handler.New(handler.Deps{
		DB:       a.DB,
		Ledger:   a.Ledger,
		Engine:   a.Engine,
		Enroller: a.Enroller,
		Images:   a.Images,
		Issuer:   auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Checks:   checks,
	})
	r := handler.NewRouter(h, handler.RouterOptions{
		Logger:         logger,
		MaxBodyBytes:   cfg.MaxUploadBytes,
		RateLimit:      httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Gatherer:       a.Registry,
		ProductionMode: cfg.Production(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server forced shutdown")
	}
	logger.Info("server exited")
	return nil
}
