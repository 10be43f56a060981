package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend of the cache. *redis.Client implements it.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache memoizes executed queries. Keys include the index generation,
// so results computed against an older index are never served after a
// swap; Invalidate additionally frees their memory. While the breaker is
// open every lookup is a miss and nothing is written.
//
// A nil *QueryCache is valid: GetOrCompute computes every time.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *QueryCache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{})
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key of a plan. Queries that tokenize identically
// share a key.
func Key(plan *parser.QueryPlan, limit int, generation uint64) string {
	d := xxhash.New()
	_, _ = d.WriteString(plan.Key())
	_, _ = d.WriteString("|limit=")
	_, _ = d.WriteString(strconv.Itoa(limit))
	_, _ = d.WriteString("|gen=")
	_, _ = d.WriteString(strconv.FormatUint(generation, 10))
	return keyPrefix + strconv.FormatUint(d.Sum64(), 16)
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var (
		data  string
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Lookup(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes and stores it.
// Concurrent misses on the same key share one computation, which runs
// detached from any single caller's cancellation but keeps ctx's deadline.
// A caller whose ctx ends stops waiting without failing the others. The
// boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if c == nil {
		result, err := compute(ctx)
		return result, false, err
	}
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := detach(ctx)
		defer cancel()
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, result)
		return result, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("waiting for query %s: %w", key, ctx.Err())
	}
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	shared := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(shared, deadline)
	}
	return context.WithCancel(shared)
}

// Invalidate deletes every cached query.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

type Stats struct {
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker,omitempty"`
}

func (c *QueryCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Enabled: true,
		Hits:    hits,
		Misses:  misses,
		Breaker: c.breaker.GetState().String(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}
