package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64         `json:"total_searches"`
	CacheHits         int64         `json:"cache_hits"`
	CacheMisses       int64         `json:"cache_misses"`
	ZeroResultCount   int64         `json:"zero_result_count"`
	AvgLatencyUs      float64       `json:"avg_latency_us"`
	P50LatencyUs      int64         `json:"p50_latency_us"`
	P95LatencyUs      int64         `json:"p95_latency_us"`
	P99LatencyUs      int64         `json:"p99_latency_us"`
	TopQueries        []QueryCount  `json:"top_queries"`
	ZeroResultQueries []QueryCount  `json:"zero_result_queries"`
	QueriesPerMinute  float64       `json:"queries_per_minute"`
	Rebuilds          int64         `json:"rebuilds"`
	FailedRebuilds    int64         `json:"failed_rebuilds"`
	LastRebuild       *RebuildEvent `json:"last_rebuild,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and rebuild events into in-memory statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	rebuilds          int64
	failedRebuilds    int64
	lastRebuild       *RebuildEvent
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAggregator(m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		metrics:           m,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds a single event into the aggregate. Unknown event types are
// ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	case RebuildEvent:
		a.recordRebuild(e)
	case *RebuildEvent:
		a.recordRebuild(*e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
		return
	}
	a.metrics.AnalyticsEvents("consumed", 1)
}

// PublishBatch lets the aggregator stand in for Kafka when the collector
// publishes in-process.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, event := range events {
		a.Record(event.Value)
	}
	return nil
}

// HandleMessage decodes one Kafka message and records it. Undecodable
// messages are logged and skipped so they do not block the partition.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch env.Type {
	case EventSearch, EventZeroResult:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.Record(event)
	case EventRebuild:
		event, err := kafka.DecodeJSON[RebuildEvent](value)
		if err != nil {
			a.logger.Error("failed to decode rebuild event", "error", err)
			return nil
		}
		a.Record(event)
	default:
		a.logger.Warn("ignoring analytics event with unknown type", "type", env.Type)
	}
	return nil
}

// Consumer is the message loop feeding the aggregator, normally a
// *kafka.Consumer built with HandleMessage.
type Consumer interface {
	Run(ctx context.Context) error
}

// Run consumes the analytics topic until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, consumer Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Run(ctx)
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.next] = event.LatencyUs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) recordRebuild(event RebuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rebuilds++
	if event.Error != "" {
		a.failedRebuilds++
	}
	a.lastRebuild = &event
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Rebuilds:        a.rebuilds,
		FailedRebuilds:  a.failedRebuilds,
	}
	if a.lastRebuild != nil {
		last := *a.lastRebuild
		stats.LastRebuild = &last
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
