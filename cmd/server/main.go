package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"agora.dev/courier/common/id"
	"agora.dev/courier/common/logger"
	"agora.dev/courier/common/otel"
	"agora.dev/courier/core/config"
	"agora.dev/courier/core/db"
	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/group"
	"agora.dev/courier/internal/http/middleware"
	httprouter "agora.dev/courier/internal/http/router"
	"agora.dev/courier/internal/inbox"
	"agora.dev/courier/internal/push"
	"agora.dev/courier/internal/queue"
	"agora.dev/courier/internal/service"
	"agora.dev/courier/internal/webhook"
	"agora.dev/courier/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "courier starting", "env", cfg.Env, "service", cfg.OTel.ServiceName, "node_id", cfg.NodeID)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	deps, cleanup, err := buildDependencies(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	services := service.NewServices(deps.log, deps.groups, deps.inbox, deps.dir, deps.router, deps.hooks, deps.dispatcher)

	// The fan-out consumer runs for the process lifetime.
	fanoutCtx, stopFanout := context.WithCancel(ctx)
	defer stopFanout()
	go func() {
		if err := deps.router.Run(fanoutCtx); err != nil && fanoutCtx.Err() == nil {
			slog.ErrorContext(fanoutCtx, "fanout consumer stopped", "error", err)
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streaming endpoints hold connections far longer than a normal
		// request; WriteTimeout would sever them.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stopFanout()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

type dependencies struct {
	log        chanlog.Log
	groups     group.Manager
	inbox      inbox.Inbox
	dir        directory.Directory
	router     *push.Router
	hooks      webhook.Store
	dispatcher *webhook.Dispatcher
}

// buildDependencies wires the Redis/Postgres stack, or the embedded
// in-memory stack when REDIS_URL is empty (single instance, no fan-out,
// in-process webhook worker).
func buildDependencies(ctx context.Context, cfg config.Config) (*dependencies, func(), error) {
	registry := push.NewRegistry(0)

	if !cfg.Redis.Enabled() {
		slog.InfoContext(ctx, "redis not configured, running embedded")
		return buildEmbedded(cfg, registry)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected")

	ib := inbox.NewRedisInbox(redisClient, cfg.Inbox.Cap)
	router := push.NewRouter(
		registry,
		push.NewRedisBus(redisClient, cfg.Push.FanoutChannel),
		push.NewRedisClaimer(redisClient, 0),
		ib,
		cfg.Push.GraceWindow,
	)

	hooks := webhook.NewPostgresStore(database.Pool())
	producer := queue.NewRedisProducer(redisClient, cfg.Hooks.Stream, slog.Default())

	deps := &dependencies{
		log:        chanlog.NewRedisLog(redisClient, chanlog.NewArchive(database.Pool())),
		groups:     group.NewRedisManager(redisClient, cfg.Groups.RedeliveryTimeout),
		inbox:      ib,
		dir:        directory.NewPostgresDirectory(database.Pool()),
		router:     router,
		hooks:      hooks,
		dispatcher: webhook.NewDispatcher(hooks, producer),
	}
	cleanup := func() {
		_ = redisClient.Close()
		database.Close()
	}
	return deps, cleanup, nil
}

func buildEmbedded(cfg config.Config, registry *push.Registry) (*dependencies, func(), error) {
	memLog := chanlog.NewMemoryLog()
	ib := inbox.NewMemoryInbox(cfg.Inbox.Cap)
	router := push.NewRouter(registry, push.NewMemoryBus(), push.NewMemoryClaimer(0), ib, cfg.Push.GraceWindow)

	hooks := webhook.NewMemoryStore()
	memQueue := queue.NewMemoryQueue(0)

	// Embedded mode has no worker binary; deliveries drain in-process.
	deliverer := worker.NewDeliverer(hooks, worker.DelivererConfig{
		SignatureHeader:  cfg.Hooks.SignatureHeader,
		FailureThreshold: cfg.Hooks.FailureThreshold,
		RequestTimeout:   cfg.Hooks.Timeout,
	})
	w := worker.New(memQueue, deliverer, worker.Config{MaxAttempts: cfg.Hooks.MaxAttempts})
	workerCtx, stopWorker := context.WithCancel(context.Background())
	go func() { _ = w.Run(workerCtx) }()

	deps := &dependencies{
		log:        memLog,
		groups:     group.NewMemoryManager(memLog, cfg.Groups.RedeliveryTimeout),
		inbox:      ib,
		dir:        directory.NewMemoryDirectory(),
		router:     router,
		hooks:      hooks,
		dispatcher: webhook.NewDispatcher(hooks, memQueue),
	}
	return deps, stopWorker, nil
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		Heartbeat:    cfg.Push.Heartbeat,
		IsProduction: cfg.IsProduction(),
	})

	return router
}
