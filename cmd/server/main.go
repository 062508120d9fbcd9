package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"elibrary-users/internal/events"
	"elibrary-users/internal/identity/handler"
	identityMetrics "elibrary-users/internal/identity/metrics"
	"elibrary-users/internal/identity/policy"
	"elibrary-users/internal/identity/service"
	"elibrary-users/internal/identity/store"
	"elibrary-users/internal/identity/validation"
	"elibrary-users/internal/lifecycle"
	"elibrary-users/internal/platform/config"
	"elibrary-users/internal/platform/httpserver"
	"elibrary-users/internal/platform/kafka"
	"elibrary-users/internal/platform/logger"
	"elibrary-users/internal/platform/metrics"
	"elibrary-users/internal/platform/postgres"
	"elibrary-users/internal/platform/redis"
)

// main wires high-level dependencies and runs the HTTP server next to the
// lifecycle scheduler. Business logic lives in the internal packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("elibrary-users exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(log)

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	identities := store.NewPostgres(db, store.WithTxTimeout(cfg.Database.TxTimeout))

	users := service.New(identities,
		policy.NewFacultyEmailPolicy(cfg.Faculty.ValidationEnabled, cfg.Faculty.AllowedDomains),
		validation.New(),
		service.WithLogger(log),
		service.WithMetrics(identityMetrics.New()),
		service.WithEventPublisher(publisher),
	)

	scheduler, err := newScheduler(cfg.Lifecycle, identities, redisClient, publisher, log)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	handler.New(users, log, metrics.New(), healthChecks(db, redisClient, cfg.Server)...).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting elibrary-users",
		"addr", cfg.Server.Addr,
		"faculty_validation", cfg.Faculty.ValidationEnabled,
		"lifecycle_cleanup", cfg.Lifecycle.CleanupEnabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	return g.Wait()
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// log publisher otherwise.
func newPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) (events.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("no kafka brokers configured, user events go to the log")
		return events.NewLogPublisher(log), func() {}, nil
	}

	client, err := kafka.NewClient(kafka.Config{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
		Linger:   cfg.Linger,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.EnsureTopic {
		if err := kafka.EnsureTopic(ctx, client, cfg.Topic, 3, 1); err != nil {
			client.Close()
			return nil, nil, err
		}
	}

	publisher := events.NewKafkaPublisher(client,
		events.WithTopic(cfg.Topic),
		events.WithLogger(log),
		events.WithMetrics(events.NewMetrics()),
	)
	return publisher, func() { flushAndClose(client, log) }, nil
}

func flushAndClose(client *kgo.Client, log *slog.Logger) {
	if err := client.Flush(context.Background()); err != nil {
		log.Warn("kafka flush failed", "error", err)
	}
	client.Close()
}

func newScheduler(cfg config.Lifecycle, identities lifecycle.Store, redisClient *redis.Client, publisher events.Publisher, log *slog.Logger) (*lifecycle.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	lifecycleMetrics := lifecycle.NewMetrics()
	jobs := lifecycle.NewJobs(identities, lifecycle.Config{
		CleanupEnabled:    cfg.CleanupEnabled,
		NotifyEnabled:     cfg.NotifyEnabled,
		WarningLeadYears:  cfg.WarningLeadYears,
		DeleteGraceMonths: cfg.DeleteGraceMonths,
	},
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithEventPublisher(publisher),
	)

	var locker lifecycle.Locker = lifecycle.NewLocalLocker()
	if redisClient != nil {
		locker = lifecycle.NewRedisLocker(redisClient.Client, "elibrary-users:")
	}
	runner := lifecycle.NewRunner(jobs, locker, cfg.LockTTL, log, lifecycleMetrics)

	scheduler, err := lifecycle.NewScheduler(runner, lifecycle.Schedule{
		Expire:     cfg.ExpireCron,
		Warn:       cfg.WarnCron,
		Delete:     cfg.DeleteCron,
		Location:   loc,
		JobTimeout: cfg.JobTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("lifecycle scheduler: %w", err)
	}
	return scheduler, nil
}

func healthChecks(db *sql.DB, redisClient *redis.Client, server config.Server) []handler.Option {
	opts := []handler.Option{
		handler.WithRequestTimeout(server.RequestTimeout),
		handler.WithHealthCheck("database", db.PingContext),
	}
	if redisClient != nil {
		opts = append(opts, handler.WithHealthCheck("redis", redisClient.Health))
	}
	return opts
}
