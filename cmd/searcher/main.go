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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/settings"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/tracing"
)

const cacheNamespace = "sqc"

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
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

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}
	tracer := tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	checker := health.NewChecker()

	engine, err := indexer.NewEngine(cfg.Indexer)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	checker.Register("index", health.PingCheck(engine.Ping, false))

	// Settings and stats persistence are optional; without Postgres the
	// configured field tables are used as-is.
	var settingsLoader settings.Loader
	var statsStore *aggregator.Store
	if cfg.Postgres.Host != "" {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, using configured field settings", "error", err)
		} else {
			defer pg.Close()
			settingsLoader = settings.NewStore(pg)
			statsStore = aggregator.NewStore(pg)
			checker.Register("postgres", health.PingCheck(pg.Ping, true))
		}
	}
	provider := settings.NewProvider(cfg.Search, settingsLoader)
	if err := provider.Reload(ctx); err != nil {
		slog.Warn("initial settings load failed, using configured field settings", "error", err)
	}
	go provider.Run(ctx, cfg.Search.ReloadInterval)

	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis, cacheNamespace)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	invalidate := func(ctx context.Context) {
		if queryCache == nil {
			return
		}
		if _, err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation after index change failed", "error", err)
		}
	}

	agg := analytics.NewAggregator()
	if statsStore != nil {
		if err := statsStore.Resume(ctx, agg); err != nil {
			slog.Warn("could not restore search stats", "error", err)
		}
		if cfg.Search.ReloadInterval > 0 {
			go statsStore.RunPeriodicSave(ctx, agg, cfg.Search.ReloadInterval)
		}
	}

	var ingestProducer kafka.Publisher
	var analyticsProducer kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		ip := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ip.Close()
		ingestProducer = ip
		ap := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer ap.Close()
		analyticsProducer = ap

		indexConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(engine, m, invalidate)))
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("index consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers, "ingest_topic", cfg.Kafka.Topics.DocumentIngest)
	}

	collector := analytics.NewCollector(analyticsProducer, agg, 10000)
	collector.Start(ctx)
	defer collector.Close()

	pub := publisher.New(engine, ingestProducer, m)
	pub.OnChange(invalidate)

	h := handler.New(executor.New(engine), provider, queryCache, collector, m, tracer, cfg.Search)
	ih := ingesthandler.New(pub, engine.Fields())
	ah := analytics.NewHandler(agg, collector)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/query/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/documents", ih.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", ih.Delete)
	mux.HandleFunc("GET /api/v1/analytics", ah.Stats)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		go limiter.RunSweeper(ctx)
		chain = middleware.RateLimit(limiter, int(cfg.Server.RateLimitWindow.Seconds()))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

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
