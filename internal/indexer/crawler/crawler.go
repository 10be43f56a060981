// Package crawler walks a document tree and builds the document table and
// the global inverted index from every file it finds.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Options tunes a crawl. The zero value indexes every file with stop words
// kept.
type Options struct {
	// Include and Exclude are doublestar patterns matched against the path
	// relative to the crawl root, slash-separated.
	Include []string
	Exclude []string
	// StopWords is applied at index time only when IndexStopWords is false.
	StopWords      *stopwords.Set
	IndexStopWords bool
	Metrics        *metrics.Metrics
}

// Result is the output of a successful crawl.
type Result struct {
	Table    *index.DocumentTable
	Index    *index.MemoryIndex
	Duration time.Duration
}

type Crawler struct {
	res    Resource
	opts   Options
	logger *slog.Logger
}

// New returns a Crawler reading from res. Patterns are validated up front.
func New(res Resource, opts Options) (*Crawler, error) {
	for _, p := range append(append([]string(nil), opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid glob pattern %q", p)
		}
	}
	return &Crawler{
		res:    res,
		opts:   opts,
		logger: slog.Default().With("component", "crawler"),
	}, nil
}

// Crawl indexes every file under root. Directories are explored depth-first
// with an explicit stack and document ids follow discovery order. Any list
// or read failure aborts the crawl; no partial index is returned.
func (c *Crawler) Crawl(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	table := index.NewDocumentTable()
	mem := index.NewMemoryIndex()
	filterStopWords := !c.opts.IndexStopWords && c.opts.StopWords.Len() > 0

	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := c.res.ListDirectory(dir)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrIO, err, "listing directory %s", dir)
		}
		for _, entry := range entries {
			rel := relative(root, entry.Path)
			if entry.IsDir {
				if c.excluded(rel) {
					c.logger.Debug("skipping excluded directory", "path", entry.Path)
					continue
				}
				stack = append(stack, entry.Path)
				continue
			}
			if !c.wanted(rel) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("crawl cancelled: %w", err)
			}

			content, err := c.res.ReadFile(entry.Path)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading file %s", entry.Path)
			}
			doc := index.Extract(entry.Path, content)
			if filterStopWords {
				doc.Filter(c.opts.StopWords)
			}
			id := table.Add(entry.Path)
			mem.Add(doc, id)
		}
	}

	elapsed := time.Since(start)
	c.opts.Metrics.ObserveCrawl(table.Count(), elapsed.Seconds())
	c.logger.Info("crawl complete",
		"root", root,
		"documents", table.Count(),
		"terms", mem.TermCount(),
		"duration", elapsed,
	)
	return &Result{Table: table, Index: mem, Duration: elapsed}, nil
}

func (c *Crawler) excluded(rel string) bool {
	for _, p := range c.opts.Exclude {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

func (c *Crawler) wanted(rel string) bool {
	if c.excluded(rel) {
		return false
	}
	if len(c.opts.Include) == 0 {
		return true
	}
	for _, p := range c.opts.Include {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

func relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
