package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/app"
	"faceattend/internal/config"
	"faceattend/internal/logging"
	"faceattend/internal/worker"
)

// Worker consumes attendance events and records them in the log.
func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("worker init failed")
	}
	defer a.Close()

	if cfg.QueueBackend == "memory" {
		logger.Warn("memory queue is process-local; the worker will not see api events")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	if err := worker.New(a.Queue, a.Identities, a.Metrics).Run(ctx); err != nil {
		logger.WithError(err).Error("worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
