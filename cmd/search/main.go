package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kontext/clipsearch/internal/ingest"
	"github.com/kontext/clipsearch/internal/search"
	"github.com/kontext/clipsearch/internal/search/cache"
	"github.com/kontext/clipsearch/internal/search/handler"
	"github.com/kontext/clipsearch/internal/store"
	"github.com/kontext/clipsearch/pkg/config"
	"github.com/kontext/clipsearch/pkg/health"
	"github.com/kontext/clipsearch/pkg/kafka"
	"github.com/kontext/clipsearch/pkg/logger"
	"github.com/kontext/clipsearch/pkg/metrics"
	"github.com/kontext/clipsearch/pkg/middleware"
	"github.com/kontext/clipsearch/pkg/postgres"
	pkgredis "github.com/kontext/clipsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()
	slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	m := metrics.New()
	st := store.NewPG(pgClient, cfg.Ingest.BatchSize)
	service := search.NewService(st, cfg.Search, m, slog.Default())

	var (
		searcher    handler.Searcher = service
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(service, redisClient, cfg.Search, cfg.Redis.CacheTTL, m, slog.Default())
		searcher = queryCache
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	if cfg.Kafka.Enabled && queryCache != nil {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IngestComplete, func(ctx context.Context, key, value []byte) error {
			event, err := kafka.DecodeJSON[ingest.CompletionEvent](value)
			if err != nil {
				slog.Warn("dropping undecodable completion event", "error", err)
				return nil
			}
			slog.Info("ingest completed, invalidating query cache", "video_id", event.VideoID)
			return queryCache.Invalidate(ctx)
		})
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("cache invalidation consumer error", "error", err)
			}
		}()
		slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.IngestComplete)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(pgClient.Ping))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping))
	}

	h := handler.New(searcher, service, st, cfg.Search)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health", checker.Handler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
