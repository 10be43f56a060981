package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// BuildConfig describes one crawl and how its queries are tokenized.
type BuildConfig struct {
	Root    string
	Include []string
	Exclude []string
	// StopWords filters queries when FilterQueries is set, and documents
	// when IndexStopWords is false.
	StopWords      *stopwords.Set
	FilterQueries  bool
	IndexStopWords bool
	Metrics        *metrics.Metrics
}

// NewBuildConfig derives a BuildConfig from the service configuration.
func NewBuildConfig(cfg *config.Config, stop *stopwords.Set, m *metrics.Metrics) BuildConfig {
	return BuildConfig{
		Root:           cfg.Indexer.Root,
		Include:        cfg.Indexer.Include,
		Exclude:        cfg.Indexer.Exclude,
		StopWords:      stop,
		FilterQueries:  cfg.Search.StopWords,
		IndexStopWords: cfg.Indexer.IndexStopWords,
		Metrics:        m,
	}
}

// Engine is one immutable index plus the means to query it. It is built
// once by Build and never modified, so any number of goroutines may search
// it concurrently.
type Engine struct {
	table      *index.DocumentTable
	mem        *index.MemoryIndex
	exec       *executor.Executor
	queryStop  *stopwords.Set
	builtAt    time.Time
	buildTook  time.Duration
	generation uint64
}

// Build crawls cfg.Root through res and returns the resulting engine.
func Build(ctx context.Context, cfg BuildConfig, res crawler.Resource) (*Engine, error) {
	c, err := crawler.New(res, crawler.Options{
		Include:        cfg.Include,
		Exclude:        cfg.Exclude,
		StopWords:      cfg.StopWords,
		IndexStopWords: cfg.IndexStopWords,
		Metrics:        cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring crawler: %w", err)
	}
	out, err := c.Crawl(ctx, cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("building index of %s: %w", cfg.Root, err)
	}

	e := &Engine{
		table:     out.Table,
		mem:       out.Index,
		exec:      executor.New(out.Table, out.Index),
		builtAt:   time.Now(),
		buildTook: out.Duration,
	}
	if cfg.FilterQueries {
		e.queryStop = cfg.StopWords
	}
	slog.Default().With("component", "indexer").Debug("engine built",
		"root", cfg.Root,
		"documents", e.DocumentCount(),
		"terms", e.TermCount(),
	)
	return e, nil
}

// Parse tokenizes a query the way Search does.
func (e *Engine) Parse(query string) *parser.QueryPlan {
	return parser.Parse(query, e.queryStop)
}

// Search runs query and returns every match, best first.
func (e *Engine) Search(ctx context.Context, query string) ([]ranker.Result, error) {
	return e.exec.Execute(ctx, e.Parse(query))
}

// Query executes a parsed plan and keeps the best limit results.
func (e *Engine) Query(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error) {
	matches, err := e.exec.Match(ctx, plan)
	if err != nil {
		return nil, err
	}
	return executor.Summarize(plan, matches, limit), nil
}

func (e *Engine) DocumentCount() int {
	return e.table.Count()
}

func (e *Engine) TermCount() int {
	return e.mem.TermCount()
}

func (e *Engine) BuiltAt() time.Time {
	return e.builtAt
}

// Document returns the name registered under id.
func (e *Engine) Document(id uint32) (string, bool) {
	return e.table.Name(id)
}

// Generation is the sequence number assigned when the engine went live, or
// 0 for an engine that was never published through Live.
func (e *Engine) Generation() uint64 {
	return e.generation
}

// Stats summarizes an engine for the stats endpoint and the CLI banner.
type Stats struct {
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	BuiltAt       time.Time `json:"built_at"`
	BuildDuration string    `json:"build_duration"`
	Generation    uint64    `json:"generation"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Documents:     e.DocumentCount(),
		Terms:         e.TermCount(),
		BuiltAt:       e.builtAt.UTC(),
		BuildDuration: e.buildTook.String(),
		Generation:    e.generation,
	}
}

// BuildDuration is the time the crawl took.
func (e *Engine) BuildDuration() time.Duration {
	return e.buildTook
}
