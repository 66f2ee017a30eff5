// Package app assembles the shared collaborators used by the api, worker and CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/faceclient"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/storage"
	"faceattend/internal/store"
	"faceattend/internal/verification"
)

// App holds wired dependencies. Close releases them.
type App struct {
	Config     config.App
	DB         *store.DB
	Redis      *store.Redis
	Queue      queue.Queue
	Images     storage.Store
	Face       *faceclient.Client
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Identities *identity.Repository
	Ledger     *attendance.Ledger
	Engine     *verification.Engine
	Enroller   *enrollment.Enroller
}

// Open connects to the database, migrates it and builds the domain services.
func Open(ctx context.Context, cfg config.App) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	a.Images, err = openImages(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	switch cfg.QueueBackend {
	case "memory":
		a.Queue = queue.NewInMemory(256)
	case "redis":
		a.Redis, err = store.NewRedis(cfg.RedisAddr)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.QueueBackend)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Face = faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	extractor := a.Metrics.InstrumentExtractor(a.Face)

	a.Engine, err = verification.New(extractor, a.Images, cfg.FaceTolerance, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Enroller = enrollment.New(extractor, a.Images, cfg.MaxUploadBytes, a.Metrics)
	a.Identities = identity.NewRepository(db.Client)
	a.Ledger = attendance.NewLedger(attendance.NewSQLRepository(db.Client),
		attendance.WithLocation(loc),
		attendance.WithEvents(a.Queue),
		attendance.WithMetrics(a.Metrics),
	)
	return a, nil
}

func openImages(cfg config.App) (storage.Store, error) {
	switch cfg.ImageStore {
	case "local":
		return storage.NewLocal(cfg.UploadDir)
	case "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("cloudinary image store needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
		client := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logrus.WithField("cloud", cfg.CloudinaryCloudName).Info("using cloudinary image store")
		return storage.NewCloudinary(client), nil
	default:
		return nil, fmt.Errorf("unsupported image store %q", cfg.ImageStore)
	}
}

// SeedAdmin creates the configured default admin when none exists.
func (a *App) SeedAdmin(ctx context.Context) error {
	created, err := a.Identities.EnsureAdmin(ctx, a.Config.AdminUserID, a.Config.AdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		logrus.WithField("user_id", a.Config.AdminUserID).Warn("created default admin; change its password")
	}
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	_ = a.Redis.Close()
	_ = a.DB.Close()
}
