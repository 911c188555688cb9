package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/adapter/httpserver"
	"github.com/pscheid92/fanpulse/internal/adapter/memory"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/adapter/postgres"
	"github.com/pscheid92/fanpulse/internal/adapter/redis"
	"github.com/pscheid92/fanpulse/internal/adapter/websocket"
	"github.com/pscheid92/fanpulse/internal/app"
	"github.com/pscheid92/fanpulse/internal/comments"
	"github.com/pscheid92/fanpulse/internal/dispatch"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/lifecycle"
	"github.com/pscheid92/fanpulse/internal/platform/config"
	"github.com/pscheid92/fanpulse/internal/platform/logging"
	"github.com/pscheid92/fanpulse/internal/platform/retry"
	"github.com/pscheid92/fanpulse/internal/platform/version"
	"github.com/pscheid92/fanpulse/internal/rooms"
	goredis "github.com/redis/go-redis/v9"
)

const (
	startupTimeout      = 60 * time.Second
	memoryCacheTTL      = 10 * time.Second
	cacheEvictionPeriod = 1 * time.Minute
	relayReadyTimeout   = 5 * time.Second
)

// storage bundles the document store collaborators, backed by Postgres or memory.
type storage struct {
	events   domain.EventRepository
	comments domain.CommentRepository
	forums   domain.ForumRepository
	check    httpserver.HealthCheck
	close    func()
}

type metricSets struct {
	handler  http.Handler
	http     *metrics.HTTPMetrics
	rooms    *metrics.RoomMetrics
	comments *metrics.CommentMetrics
	redis    *metrics.RedisMetrics
	database *metrics.DatabaseMetrics
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStorage(ctx context.Context, cfg *config.Config, dbMetrics *metrics.DatabaseMetrics) storage {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory storage; data is lost on restart")
		repo := memory.NewRepository()
		return storage{
			events:   repo,
			comments: repo,
			forums:   repo,
			check:    httpserver.HealthCheck{Name: "memory", Check: repo.Ping},
			close:    func() {},
		}
	}

	pool := setupDB(ctx, cfg, dbMetrics)
	return storage{
		events:   postgres.NewEventRepo(pool),
		comments: postgres.NewCommentRepo(pool),
		forums:   postgres.NewForumRepo(pool),
		check:    httpserver.HealthCheck{Name: "postgres", Check: pool.Ping},
		close:    pool.Close,
	}
}

func setupDB(ctx context.Context, cfg *config.Config, dbMetrics *metrics.DatabaseMetrics) *pgxpool.Pool {
	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	pool, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, dbMetrics)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, redisMetrics *metrics.RedisMetrics, clock clockwork.Clock) *goredis.Client {
	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	breaker := redis.NewCircuitBreakerHook(redisMetrics)
	observer := redis.NewMetricsHook(redisMetrics, clock)
	client, err := retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, observer, breaker)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupMetrics() metricSets {
	reg := metrics.NewRegistry()
	return metricSets{
		handler:  metrics.Handler(reg),
		http:     metrics.NewHTTPMetrics(reg),
		rooms:    metrics.NewRoomMetrics(reg),
		comments: metrics.NewCommentMetrics(reg),
		redis:    metrics.NewRedisMetrics(reg),
		database: metrics.NewDatabaseMetrics(reg),
	}
}

// startRelay runs the cross-instance relay and waits until its subscription is live,
// so no broadcast published after startup is missed by this instance.
func startRelay(ctx context.Context, relay *redis.RoomRelay) {
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Room relay stopped", "error", err)
		}
	}()

	select {
	case <-relay.Ready():
		slog.Info("Room relay subscribed")
	case <-time.After(relayReadyTimeout):
		slog.Warn("Room relay not ready yet, continuing", "timeout", relayReadyTimeout)
	}
}

func runGracefulShutdown(ctx context.Context, cfg *config.Config, srv *httpserver.Server, registry *rooms.Registry, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopBackground()
		registry.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ms := setupMetrics()

	startupCtx, cancelStartup := context.WithTimeout(sigCtx, startupTimeout)
	defer cancelStartup()

	store := setupStorage(startupCtx, cfg, ms.database)
	defer store.close()
	healthChecks := []httpserver.HealthCheck{store.check}

	// Background work (ticker, relay, cache eviction) stops before the registry does.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var redisClient *goredis.Client
	events := store.events
	if cfg.RedisURL != "" {
		redisClient = setupRedis(startupCtx, cfg, ms.redis, clock)
		defer func() { _ = redisClient.Close() }()
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})

		cache := redis.NewEventCache(redisClient, store.events, clock, memoryCacheTTL, ms.redis, redis.WithRedisTTL(cfg.EventCacheTTL))
		stopEviction := cache.StartEvictionTimer(cacheEvictionPeriod)
		defer stopEviction()
		events = cache
	} else {
		slog.Info("REDIS_URL not set, fan-out stays within this instance")
	}

	lc := lifecycle.NewClock(cfg.Location())
	limits := comments.Limits{
		Default: cfg.CommentMaxLength,
		PerKind: map[domain.EventKind]int{domain.EventKindForum: cfg.ForumMessageMaxLength},
	}
	commentStore := comments.NewStore(store.events, store.comments, clock, limits, ms.comments)

	// The registry's room hooks drive the ticker, and the ticker pushes through the
	// registry. Hooks only fire on joins, which cannot happen before the server starts.
	var ticker *app.StatusTicker
	registry := rooms.NewRegistry(clock, cfg.MaxSubscribersPerRoom, rooms.Hooks{
		OnRoomOpened: func(key domain.RoomKey) { ticker.Hooks().OnRoomOpened(key) },
		OnRoomClosed: func(key domain.RoomKey) { ticker.Hooks().OnRoomClosed(key) },
	}, ms.rooms)

	var fanout dispatch.Broadcaster = registry
	if redisClient != nil {
		// Graphs changed through another instance are reloaded on next use.
		relay := redis.NewRoomRelay(redisClient, registry, ms.redis,
			redis.WithRemoteFunc(dispatch.InvalidateOnRemote(commentStore)))
		startRelay(bgCtx, relay)
		fanout = relay
	}

	appSvc := app.NewService(events, store.forums, commentStore, dispatch.NewDispatcher(fanout), lc, clock)

	// Every instance ticks for the rooms it holds, so status updates stay local.
	ticker = app.NewStatusTicker(appSvc, dispatch.NewDispatcher(registry), clock)
	go ticker.Run(bgCtx)

	connLimiter := websocket.NewConnLimiter(websocket.LimitConfig{
		MaxTotal: cfg.MaxConnections,
		MaxPerIP: cfg.MaxConnectionsPerIP,
		Rate:     cfg.ConnectionRate,
		Burst:    cfg.ConnectionBurst,
	}, clock)
	checkOrigin := websocket.NewCheckOrigin(cfg.Origins(), cfg.AppEnv == "development")
	wsHandler := websocket.NewHandler(registry, checkOrigin, clock, ms.rooms, websocket.WithConnLimiter(connLimiter))

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		App:              appSvc,
		WebsocketHandler: wsHandler,
		MetricsHandler:   ms.handler,
		Metrics:          ms.http,
		HealthChecks:     healthChecks,
		Clock:            clock,
	})

	done := runGracefulShutdown(sigCtx, cfg, srv, registry, stopBackground)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
