package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/luckydraw/internal/adapter/httpserver"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/adapter/notify"
	"github.com/pscheid92/luckydraw/internal/adapter/postgres"
	"github.com/pscheid92/luckydraw/internal/adapter/redis"
	"github.com/pscheid92/luckydraw/internal/app"
	"github.com/pscheid92/luckydraw/internal/broadcast"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/draw"
	"github.com/pscheid92/luckydraw/internal/platform/config"
	"github.com/pscheid92/luckydraw/internal/platform/logging"
	"github.com/pscheid92/luckydraw/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

type components struct {
	srv         *httpserver.Server
	dispatcher  *app.Dispatcher
	broadcaster *broadcast.Broadcaster
	watcher     *app.ChangeWatcher
}

func runGracefulShutdown(c components) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Let in-flight winner notifications finish before the stores go away.
		if err := c.dispatcher.Stop(shutdownCtx); err != nil {
			slog.Warn("Dispatcher did not drain before timeout", "error", err)
		}
		c.broadcaster.Stop()
		c.watcher.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.StorageMetrics, clock clockwork.Clock) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL,
		postgres.WithTracer(postgres.NewMetricsTracer(m, clock)),
		postgres.WithMaxConns(int32(cfg.DBMaxConns)))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.StorageMetrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNotifier(cfg *config.Config) (domain.WinnerNotifier, []app.DispatcherOption) {
	if cfg.NotifyWebhookURL == "" {
		slog.Info("No notification webhook configured, winner notifications are only logged")
		return notify.LogNotifier{}, nil
	}
	client := &http.Client{Timeout: cfg.NotifyTimeout}
	return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, client), []app.DispatcherOption{
		app.WithClassifier(notify.Classify),
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	storageMetrics := metrics.NewStorageMetrics(reg)
	streamMetrics := metrics.NewStreamMetrics(reg)
	drawMetrics := metrics.NewDrawMetrics(reg)

	pool := setupDB(cfg, storageMetrics, clock)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg, storageMetrics)
	defer func() { _ = redisClient.Close() }()

	eventRepo := postgres.NewEventRepo(pool)
	entryRepo := postgres.NewEntryRepo(pool)
	prizeRepo := postgres.NewPrizeRepo(pool)

	notifier, dispatcherOpts := setupNotifier(cfg)
	guard := redis.NewNotificationGuard(redisClient, cfg.NotifyDedupeWindow)
	dispatcher := app.NewDispatcher(notifier, guard, drawMetrics, cfg.NotifyTimeout, dispatcherOpts...)

	// The broadcaster and the watcher reference each other: the broadcaster starts and stops
	// watching as events gain and lose subscribers, the watcher publishes into the broadcaster.
	var watcher *app.ChangeWatcher
	onFirstSubscriber := func(eventID uuid.UUID) { watcher.Watch(eventID) }
	onEventEmpty := func(eventID uuid.UUID) { watcher.Unwatch(eventID) }
	broadcaster := broadcast.NewBroadcaster(onFirstSubscriber, onEventEmpty, clock, streamMetrics, cfg.MaxSubscribersPerEvent)
	watcher = app.NewChangeWatcher(entryRepo, broadcaster, clock, cfg.EntryPollInterval, streamMetrics)

	selector := draw.NewSelector(draw.SecureSource())
	appSvc := app.NewService(eventRepo, entryRepo, prizeRepo, dispatcher, watcher, selector, clock, drawMetrics)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}
	srv := httpserver.NewServer(cfg, appSvc, broadcaster, clock, reg, healthChecks)
	// Stream handlers only return once their subscription ends.
	srv.OnShutdown(broadcaster.Stop)

	done := runGracefulShutdown(components{
		srv:         srv,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		watcher:     watcher,
	})

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
