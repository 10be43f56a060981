package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Publisher ships a batch of events. *kafka.Producer and *Aggregator both
// satisfy it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the in-memory buffer and batching of a Collector.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

// Collector accepts events without blocking the caller and publishes them
// in batches from a single background worker. A batch is flushed when it
// reaches BatchSize events or after FlushInterval, whichever comes first.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	done    chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
}

func NewCollector(publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		metrics:       cfg.Metrics,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background worker. When ctx is cancelled the worker
// publishes whatever is buffered and exits.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues an event. It never blocks: when the buffer is full or the
// collector is closed the event is dropped and counted.
func (c *Collector) Track(event any) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop()
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.drop()
	}
}

// Close stops accepting events, flushes the buffer and waits for the
// worker to exit.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()

	if c.started.Load() {
		<-c.done
	}
}

// Counts returns the number of published and dropped events so far.
func (c *Collector) Counts() (published, dropped int64) {
	if c == nil {
		return 0, 0
	}
	return c.published.Load(), c.dropped.Load()
}

func (c *Collector) drop() {
	n := c.dropped.Add(1)
	c.metrics.AnalyticsEvents("dropped", 1)
	if n == 1 || n%1000 == 0 {
		c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", n)
	}
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	pending := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.final(pending)
				return
			}
			pending = append(pending, kafka.Event{Key: key(event), Value: event})
			if len(pending) >= c.batchSize {
				pending = c.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = c.flush(ctx, pending)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						drained = true
						break
					}
					pending = append(pending, kafka.Event{Key: key(event), Value: event})
				default:
					drained = true
				}
			}
			c.final(pending)
			return
		}
	}
}

// final publishes the remaining events with a short deadline of its own,
// since the worker's context may already be cancelled.
func (c *Collector) final(pending []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, pending); len(rest) > 0 {
		c.dropped.Add(int64(len(rest)))
		c.logger.Error("analytics events lost on shutdown", "count", len(rest))
	}
}

// flush publishes pending and returns what is left to retry. Failed batches
// are kept up to three batches deep; anything beyond that is dropped.
func (c *Collector) flush(ctx context.Context, pending []kafka.Event) []kafka.Event {
	if len(pending) == 0 {
		return pending
	}
	if err := c.publisher.PublishBatch(ctx, pending); err != nil {
		c.metrics.AnalyticsEvents("failed", len(pending))
		c.logger.Error("batch flush failed", "batch_size", len(pending), "error", err)
		if limit := c.batchSize * 3; len(pending) > limit {
			dropped := len(pending) - limit
			c.dropped.Add(int64(dropped))
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
			pending = pending[:limit]
		}
		return pending
	}
	c.published.Add(int64(len(pending)))
	c.metrics.AnalyticsEvents("published", len(pending))
	c.logger.Debug("batch flushed", "events", len(pending))
	return make([]kafka.Event, 0, c.batchSize)
}
