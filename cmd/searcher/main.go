package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/watcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

func main() {
	app := &cli.App{
		Name:  "searcher",
		Usage: "Serve full-text search over a directory of text files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Value:   "configs/development.yaml",
				EnvVars: []string{"DS_CONFIG"},
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "searcher: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "root", cfg.Indexer.Root)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := newGroup(ctx)
	defer g.cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		g.Go(func() error { return m.Serve(gctx, fmt.Sprintf(":%d", cfg.Metrics.Port)) })
	}

	stopWords, err := stopwords.Load(cfg.Search.StopWordsFile)
	if err != nil {
		return g.abort(err)
	}
	live := indexer.NewLive(indexer.NewBuildConfig(cfg, stopWords, m), crawler.FileSystem{}, cfg.Indexer.BuildTimeout)
	if _, err := live.Rebuild(ctx); err != nil {
		return g.abort(fmt.Errorf("initial index build: %w", err))
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		eng, err := live.Engine()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", eng.Generation(), eng.DocumentCount()),
		}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange: func(name string, to resilience.State) {
					m.SetBreakerState(name, int(to))
				},
			})
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker, m)
			checker.Register("redis", health.Ping(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		aggregator *analytics.Aggregator
		collector  *analytics.Collector
		snapshots  analytics.SnapshotLister
	)
	if cfg.Analytics.Enabled {
		aggregator = analytics.NewAggregator(m)
		var publisher analytics.Publisher = aggregator
		if cfg.Kafka.Enabled {
			topic := cfg.Kafka.Topics.AnalyticsEvents
			producer := kafka.NewProducer(cfg.Kafka, topic)
			defer producer.Close()
			publisher = producer
			consumer := kafka.NewConsumer(cfg.Kafka, topic, aggregator.HandleMessage)
			g.Go(func() error { return aggregator.Run(gctx, consumer) })
			checker.Register("kafka", health.Ping(func(ctx context.Context) error {
				return kafka.Ping(ctx, cfg.Kafka.Brokers)
			}, true))
			slog.Info("analytics events routed through kafka", "topic", topic)
		}
		collector = analytics.NewCollector(publisher, analytics.CollectorConfig{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
			Metrics:       m,
		})
		collector.Start(ctx)
		defer collector.Close()

		if cfg.Postgres.Enabled {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
			} else {
				defer db.Close()
				st := store.New(db, cfg.Analytics.SnapshotRetention)
				if err := st.EnsureSchema(ctx); err != nil {
					slog.Warn("analytics schema unavailable, snapshots disabled", "error", err)
				} else {
					snapshots = st
					g.Go(func() error {
						store.RunPeriodic(gctx, st, aggregator, cfg.Analytics.SnapshotInterval)
						return nil
					})
				}
				checker.Register("postgres", health.Ping(db.Ping, true))
			}
		}
	}

	live.OnRebuild(func(ev indexer.RebuildEvent) {
		rebuild := analytics.RebuildEvent{
			Type:       analytics.EventRebuild,
			Generation: ev.Stats.Generation,
			Documents:  ev.Stats.Documents,
			Terms:      ev.Stats.Terms,
			DurationMs: ev.Duration.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		}
		if ev.Err != nil {
			rebuild.Error = ev.Err.Error()
		} else if queryCache != nil {
			invalidateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := queryCache.Invalidate(invalidateCtx); err != nil {
				slog.Warn("cache invalidation after rebuild failed", "error", err)
			}
			cancel()
		}
		collector.Track(rebuild)
	})

	if cfg.Watch.Enabled {
		w, err := watcher.New(cfg.Indexer.Root, cfg.Watch.Debounce, cfg.Indexer.Exclude, func(ctx context.Context) {
			if _, err := live.Rebuild(ctx); err != nil {
				slog.Error("rebuild after file change failed", "error", err)
			}
		})
		if err != nil {
			return g.abort(fmt.Errorf("starting watcher: %w", err))
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	h := handler.New(live, queryCache, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	mux := http.NewServeMux()
	h.Register(mux)
	if aggregator != nil {
		ah := analytics.NewHandler(aggregator, snapshots)
		mux.HandleFunc("GET /api/v1/analytics", ah.Stats)
		mux.HandleFunc("GET /api/v1/analytics/snapshots", ah.Snapshots)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter middleware.Limiter
	if rl := cfg.Server.RateLimit; rl.Enabled {
		l := ratelimit.New(rl.Burst, rl.Window)
		g.Go(func() error {
			l.Run(gctx, rl.Window)
			return nil
		})
		limiter = l
	}

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("search service stopped")
	return nil
}

// group runs the service's background work under one cancellable context.
type group struct {
	*errgroup.Group
	cancel context.CancelFunc
}

func newGroup(ctx context.Context) (*group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	return &group{Group: g, cancel: cancel}, gctx
}

// abort stops everything started so far, waits for it and returns err.
func (g *group) abort(err error) error {
	g.cancel()
	_ = g.Wait()
	return err
}
