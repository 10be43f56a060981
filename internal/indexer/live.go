package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/crawler"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// RebuildEvent reports the outcome of one rebuild to listeners. Err is nil
// on success, in which case Stats describes the engine now live.
type RebuildEvent struct {
	Stats    Stats
	Duration time.Duration
	Err      error
}

// Live holds the engine currently serving queries. Rebuild crawls a fresh
// engine and swaps it in atomically; queries already running keep the
// engine they started with.
type Live struct {
	cfg          BuildConfig
	res          crawler.Resource
	buildTimeout time.Duration

	current    atomic.Pointer[Engine]
	generation atomic.Uint64
	group      singleflight.Group

	mu        sync.Mutex
	listeners []func(RebuildEvent)

	logger *slog.Logger
}

func NewLive(cfg BuildConfig, res crawler.Resource, buildTimeout time.Duration) *Live {
	return &Live{
		cfg:          cfg,
		res:          res,
		buildTimeout: buildTimeout,
		logger:       slog.Default().With("component", "live-index"),
	}
}

// OnRebuild registers fn to run after every rebuild attempt, successful or
// not. Listeners run synchronously on the rebuilding goroutine.
func (l *Live) OnRebuild(fn func(RebuildEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Engine returns the live engine, or errors.ErrIndexNotReady before the
// first successful build.
func (l *Live) Engine() (*Engine, error) {
	e := l.current.Load()
	if e == nil {
		return nil, apperrors.New(apperrors.ErrIndexNotReady, http.StatusServiceUnavailable, "index has not been built yet")
	}
	return e, nil
}

// Generation counts successful swaps. It is 0 until the first build.
func (l *Live) Generation() uint64 {
	return l.generation.Load()
}

// Rebuild performs a full re-crawl. Concurrent calls share one crawl, bounded
// by the build timeout rather than by any caller's ctx: a caller whose ctx
// ends stops waiting while the crawl completes for the rest. On failure the
// previous engine stays live.
func (l *Live) Rebuild(ctx context.Context) (*Engine, error) {
	ch := l.group.DoChan("rebuild", func() (any, error) {
		return l.rebuild(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared {
			l.logger.Debug("rebuild request coalesced")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Engine), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for index rebuild: %w", ctx.Err())
	}
}

func (l *Live) rebuild(ctx context.Context) (*Engine, error) {
	start := time.Now()
	var fresh *Engine
	err := resilience.WithTimeout(ctx, l.buildTimeout, "index rebuild", func(ctx context.Context) error {
		e, err := Build(ctx, l.cfg, l.res)
		if err != nil {
			return err
		}
		fresh = e
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		l.cfg.Metrics.ObserveRebuild("failure", 0, 0, 0)
		l.logger.Error("index rebuild failed, keeping previous index",
			"error", err,
			"generation", l.generation.Load(),
			"duration", elapsed,
		)
		l.notify(RebuildEvent{Duration: elapsed, Err: err})
		return nil, err
	}

	fresh.generation = l.generation.Add(1)
	l.current.Store(fresh)
	stats := fresh.Stats()
	l.cfg.Metrics.ObserveRebuild("success", stats.Documents, stats.Terms, stats.Generation)
	l.logger.Info("index swapped",
		"generation", stats.Generation,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"duration", elapsed,
	)
	l.notify(RebuildEvent{Stats: stats, Duration: elapsed})
	return fresh, nil
}

func (l *Live) notify(ev RebuildEvent) {
	l.mu.Lock()
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
