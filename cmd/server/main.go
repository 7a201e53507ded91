package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/attendance/events"
	"rollcall/internal/attendance/handler"
	attendancemetrics "rollcall/internal/attendance/metrics"
	"rollcall/internal/attendance/service"
	"rollcall/internal/attendance/statistics"
	"rollcall/internal/attendance/store/directory"
	"rollcall/internal/attendance/store/facts"
	"rollcall/internal/attendance/store/record"
	"rollcall/internal/attendance/store/session"
	"rollcall/internal/attendance/store/token"
	"rollcall/internal/attendance/worker"
	jwttoken "rollcall/internal/jwt_token"
	"rollcall/internal/platform/config"
	"rollcall/internal/platform/httpserver"
	"rollcall/internal/platform/kafka"
	"rollcall/internal/platform/logger"
	"rollcall/internal/platform/metrics"
	"rollcall/internal/platform/postgres"
	"rollcall/internal/platform/redis"
	"rollcall/migrations"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

type backends struct {
	sessions  service.SessionStore
	records   service.RecordStore
	tokens    service.TokenStore
	directory service.Directory
	facts     statistics.FactSource
	tx        service.StoreTx
	// sweepable is set when the token backend keeps expired rows itself.
	sweepable worker.ExpiredTokenStore
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	attMetrics := attendancemetrics.New(reg)
	httpMetrics := metrics.New(reg)

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if cfg.Database.Migrate {
			if err := migrations.Apply(ctx, db); err != nil {
				return err
			}
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	b := buildBackends(cfg, db, redisClient, log)

	publisher, closePublisher, err := buildPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	svc := service.New(b.sessions, b.records, b.tokens, b.directory,
		service.WithLogger(log),
		service.WithMetrics(attMetrics),
		service.WithEventPublisher(publisher),
		service.WithTx(b.tx),
	)
	stats := statistics.New(b.facts,
		statistics.WithLogger(log),
		statistics.WithMetrics(attMetrics),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "rollcall", "rollcall-api")
	attendanceHandler := handler.New(svc, stats, log, httpMetrics, jwttoken.NewJWTServiceAdapter(jwtService))

	srv := httpserver.New(cfg.Addr, newRouter(reg, attendanceHandler, health(db, redisClient)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting rollcall", "addr", cfg.Addr, "token_store", cfg.TokenStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if b.sweepable != nil {
		sweeper := worker.NewTokenSweeper(b.sweepable,
			worker.WithInterval(cfg.Sweeper.Interval),
			worker.WithRetention(cfg.Sweeper.Retention),
			worker.WithLogger(log),
			worker.WithMetrics(attMetrics),
		)
		g.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func buildBackends(cfg config.Server, db *sql.DB, redisClient *redis.Client, log *slog.Logger) backends {
	var b backends
	if db != nil {
		b.sessions = session.NewPostgres(db)
		b.records = record.NewPostgres(db)
		b.directory = directory.NewPostgres(db)
		b.facts = facts.NewPostgres(db)
		b.tx = newAttendancePostgresTx(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores with an empty directory")
		sessions := session.NewInMemory()
		records := record.NewInMemory()
		dir := directory.NewInMemory()
		b.sessions, b.records, b.directory = sessions, records, dir
		b.facts = facts.NewInMemory(records, sessions, dir)
		b.tx = service.NewInMemoryStoreTx()
	}

	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		b.tokens = token.NewRedis(redisClient.Client, token.WithRetention(cfg.Sweeper.Retention))
	case config.TokenStorePostgres:
		store := token.NewPostgres(db)
		b.tokens, b.sweepable = store, store
	default:
		store := token.NewInMemory()
		b.tokens, b.sweepable = store, store
	}
	return b
}

func buildPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (service.EventPublisher, func(), error) {
	client, err := kafka.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return events.NewLogPublisher(log), func() {}, nil
	}
	if err := events.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions, cfg.Replicas); err != nil {
		client.Close()
		return nil, nil, err
	}
	publisher := events.NewKafkaPublisher(client, cfg.Topic, log)
	return publisher, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.Flush(flushCtx); err != nil {
			log.Warn("failed to flush domain events", "error", err)
		}
		client.Close()
	}, nil
}

// newRouter serves /metrics and /healthz unauthenticated next to the
// attendance routes.
func newRouter(reg *prometheus.Registry, attendance *handler.Handler, healthz http.HandlerFunc) http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Get("/healthz", healthz)
	attendance.Register(router)
	return router
}

func health(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
