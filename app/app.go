// Package app wires configuration into the running components shared by
// the server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"rfp-backend/config"
	"rfp-backend/database"
	"rfp-backend/events"
	"rfp-backend/handlers"
	"rfp-backend/locks"
	"rfp-backend/metrics"
	"rfp-backend/repository"
	"rfp-backend/service"
	"rfp-backend/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// reconcilerLockKey is shared by every replica
const reconcilerLockKey = "rfp:reconciler:lock"

// App holds the initialized components
type App struct {
	cfg    config.Config
	logger *slog.Logger

	db      *pgxpool.Pool
	nats    *events.NATSPublisher
	redis   *redis.Client
	metrics *metrics.Metrics

	Storage    storage.Storage
	Repository *repository.RFPRepository
	Service    *service.RFPService
	Reconciler *service.Reconciler
}

// New connects to every configured backend. On error, anything already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.RunMigrations {
		if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	a.db, err = database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Postgres connection established")

	a.Storage, err = storage.NewStorage(cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage().Type)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		a.nats, err = events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		publisher = a.nats
		logger.Info("Publishing lifecycle events", "nats_url", cfg.NATSURL)
	}

	reconcilerOpts := []service.ReconcilerOption{
		service.WithInterval(cfg.ReconcileInterval),
		service.WithReconcilerPublisher(publisher),
		service.WithReconcilerMetrics(a.metrics),
		service.WithReconcilerLogger(logger.With("component", "reconciler")),
	}
	if cfg.RedisURL != "" {
		a.redis, err = locks.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		reconcilerOpts = append(reconcilerOpts,
			service.WithSweepLock(locks.NewRedisLock(a.redis, reconcilerLockKey, cfg.ReconcileLockTTL)))
		logger.Info("Reconciler sweeps coordinated through Redis")
	}

	a.Repository = repository.NewRFPRepository(a.db)
	a.Service = service.NewRFPService(
		service.WithRFPStore(a.Repository),
		service.WithStorage(a.Storage),
		service.WithPublisher(publisher),
		service.WithMetrics(a.metrics),
		service.WithLogger(logger),
		service.WithUploadPolicy(cfg.UploadMaxBytes, cfg.UploadSniffContent),
	)
	a.Reconciler = service.NewReconciler(a.Repository, reconcilerOpts...)

	return a, nil
}

// Handler builds the HTTP router
func (a *App) Handler() http.Handler {
	return handlers.NewRouter(handlers.RouterConfig{
		RFPs:    handlers.NewRFPHandler(a.Service, a.logger, a.cfg.UploadMaxBytes),
		Files:   handlers.NewFileHandler(a.Storage, a.logger),
		Metrics: a.metrics,
		Logger:  a.logger,
	})
}

// Close releases connections in reverse order of creation
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
