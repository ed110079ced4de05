package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cardkeep/internal/activity"
	"cardkeep/internal/entities"
	entityhandler "cardkeep/internal/entities/handler"
	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/kafka"
	"cardkeep/internal/platform/metrics"
	"cardkeep/internal/platform/middleware"
	"cardkeep/internal/platform/postgres"
	"cardkeep/internal/platform/redis"
	"cardkeep/internal/users"
	"cardkeep/pkg/platform/httputil"
)

// app holds the wired process. Business logic lives in internal packages;
// this only connects them.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Registry
	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer
	sink     *activity.KafkaSink
	service  *entities.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	factory := entities.MemoryModels()
	if a.cfg.Storage.Backend == config.StoragePostgres {
		db, err := postgres.Open(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		factory = entities.PostgresModels(db)
	}
	registry := entities.NewRegistry(factory)

	serviceOpts := []entities.Option{
		entities.WithLogger(a.logger),
		entities.WithMetrics(entities.NewMetrics(a.metrics.Registerer())),
		entities.WithAuditTimeout(a.cfg.Audit.Timeout),
	}

	var names users.Lookup = users.NewModelLookup(registry.Model(entities.KindUser))
	rdb, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		a.redis = rdb
		cached := users.NewCachedLookup(names, rdb.Client, a.cfg.Redis.NameCacheTTL, a.logger)
		names = cached
		serviceOpts = append(serviceOpts, entities.WithUserChangeHook(cached.Invalidate))
		a.logger.Info("display name cache enabled", "ttl", a.cfg.Redis.NameCacheTTL)
	}

	recorderOpts := []activity.Option{
		activity.WithLogger(a.logger),
		activity.WithMetrics(activity.NewMetrics(a.metrics.Registerer())),
	}
	producer, err := kafka.NewProducer(ctx, a.cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		a.producer = producer
		a.sink = activity.NewKafkaSink(producer, a.logger)
		recorderOpts = append(recorderOpts, activity.WithSink(a.sink))
		a.logger.Info("activity stream enabled", "topic", producer.Topic())
	}

	recorder, err := activity.NewRecorder(
		activity.NewModelStore(registry.Model(entities.KindCardActivityLog)),
		names,
		recorderOpts...,
	)
	if err != nil {
		return fmt.Errorf("build activity recorder: %w", err)
	}

	serviceOpts = append(serviceOpts, entities.WithActivityRecorder(recorder))
	a.service, err = entities.New(registry, serviceOpts...)
	if err != nil {
		return fmt.Errorf("build entity service: %w", err)
	}
	return nil
}

// Router builds the HTTP surface: health and metrics are public, the entity
// routes require a bearer token.
func (a *app) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(a.logger))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())

	validator := middleware.NewTokenValidator(a.cfg.Auth.JWTSigningKey)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, a.logger))
		entityhandler.New(a.service, a.logger).Register(r)
	})
	return r
}

type healthResponse struct {
	Status  string            `json:"status"`
	Storage string            `json:"storage"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Storage: a.cfg.Storage.Backend, Checks: map[string]string{}}
	check := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Checks[name] = "ok"
	}
	if a.db != nil {
		check("postgres", a.db.PingContext(ctx))
	}
	if a.redis != nil {
		check("redis", a.redis.Health(ctx))
	}
	if a.producer != nil {
		err := a.producer.Health(ctx)
		if err == nil && !a.sink.Healthy() {
			err = errors.New("stream circuit open")
		}
		check("kafka", err)
	}

	status := http.StatusOK
	// Postgres is the only dependency the gateway cannot work without.
	if pg, ok := resp.Checks["postgres"]; ok && pg != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing database", "error", err)
		}
	}
}
