package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"trustscore/internal/platform/config"
	"trustscore/internal/platform/httpserver"
	"trustscore/internal/platform/kafka"
	"trustscore/internal/platform/logger"
	"trustscore/internal/platform/metrics"
	"trustscore/internal/platform/postgres"
	"trustscore/internal/platform/redis"
	"trustscore/internal/platform/servicetoken"
	"trustscore/internal/platform/tracing"
	"trustscore/internal/verification/events"
	"trustscore/internal/verification/handler"
	verificationMetrics "trustscore/internal/verification/metrics"
	"trustscore/internal/verification/service"
	"trustscore/internal/verification/store"
	"trustscore/pkg/platform/circuit"
	"trustscore/pkg/platform/httputil"
	request "trustscore/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.IsProduction())

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// backend is the selected record store plus what it needs on the way out.
type backend struct {
	store  service.Store
	health func(ctx context.Context) error
	close  func() error
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	tp, err := tracing.New(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(verificationMetrics.New(registry)),
		service.WithTracer(tp.Tracer("trustscore/verification")),
	}

	kafkaClient, err := openKafka(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		publisher := events.NewBreakerPublisher(
			events.NewKafkaPublisher(kafkaClient, cfg.Kafka.Topic),
			circuit.New("kafka"),
			log,
		)
		opts = append(opts, service.WithPublisher(publisher))
	}

	svc := service.New(be.store, opts...)
	tokens := servicetoken.New(cfg.ServiceToken.SigningKey, cfg.ServiceToken.Issuer, cfg.ServiceToken.Audience)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(chimw.Timeout(cfg.StoreTimeout))
	r.Get("/health", healthHandler(be.health))
	r.Handle("/metrics", metrics.Handler(registry))
	handler.New(svc, log, tokens).Register(r)

	srv := httpserver.New(cfg.Server, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting trustscore",
			"addr", cfg.Server.Addr,
			"store_backend", cfg.StoreBackend,
			"kafka_enabled", kafkaClient != nil,
			"trace_export", cfg.Tracing.Endpoint != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
		}
		// flush after the server drains so in-flight request spans are exported
		if err := tp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown failed: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("using redis record store")
		return &backend{
			store:  store.NewRedis(client.Client),
			health: client.Health,
			close:  client.Close,
		}, nil

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("using postgres record store")
		return &backend{
			store:  pg,
			health: pingDB(db),
			close:  db.Close,
		}, nil

	default:
		log.Info("using in-memory record store")
		return &backend{
			store:  store.NewInMemory(),
			health: func(context.Context) error { return nil },
			close:  func() error { return nil },
		}, nil
	}
}

func openKafka(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (*kgo.Client, error) {
	client, err := kafka.New(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("kafka disabled, verification events will not be published")
		return nil, nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Topic, 3, 1); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func pingDB(db *sql.DB) func(ctx context.Context) error {
	return db.PingContext
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
