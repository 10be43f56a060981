package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"the",
	"hair",
	"cat sat",
	`"the hair"`,
	`"is red" long`,
	"red AND long",
	"steve",
	"unicorn",
	"dog",
	`"the dog sat"`,
}

type loadConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

type stats struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	cacheHits   int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newStats() *stats {
	return &stats{statusCodes: make(map[int]int64)}
}

func (s *stats) record(d time.Duration, status int, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	if status < 200 || status >= 300 {
		s.errors++
	}
	if cacheHit {
		s.cacheHits++
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
}

func main() {
	app := &cli.App{
		Name:  "loadtest",
		Usage: "Drive concurrent queries at a running search service and report latency",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "base URL of the search service"},
			&cli.IntFlag{Name: "concurrency", Value: 10, Usage: "number of concurrent workers"},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Second, Usage: "test duration"},
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "limit parameter sent with each query"},
			&cli.StringFlag{Name: "queries", Usage: "file with one query per line (default: a built-in set)"},
		},
		Action: func(c *cli.Context) error {
			queries := defaultQueries
			if path := c.String("queries"); path != "" {
				var err error
				if queries, err = readQueries(path); err != nil {
					return err
				}
			}
			cfg := loadConfig{
				BaseURL:     strings.TrimRight(c.String("url"), "/"),
				Concurrency: c.Int("concurrency"),
				Duration:    c.Duration("duration"),
				Limit:       c.Int("limit"),
				Queries:     queries,
			}
			if cfg.Concurrency < 1 {
				return fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
			}

			out := c.App.Writer
			fmt.Fprintln(out, "=== docsearch load test ===")
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
			fmt.Fprintf(out, "Queries:     %d unique\n\n", len(cfg.Queries))

			s, err := runLoad(c.Context, newClient(cfg.Concurrency), cfg)
			if err != nil {
				return err
			}
			return report(out, s, cfg.Duration)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries file: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queries file: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("queries file %s is empty", path)
	}
	return queries, nil
}

// runLoad keeps every worker busy until cfg.Duration elapses or ctx is
// cancelled.
func runLoad(ctx context.Context, client *http.Client, cfg loadConfig) (*stats, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	s := newStats()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d",
					cfg.BaseURL, url.QueryEscape(cfg.Queries[i%len(cfg.Queries)]), cfg.Limit)
				req, err := http.NewRequestWithContext(gctx, http.MethodGet, target, nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					s.record(elapsed, 0, false, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				s.record(elapsed, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

func report(out io.Writer, s *stats, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(out, "Errors:          %d\n", s.errors)
	if s.total == 0 {
		return errors.New("no requests completed, is the service running?")
	}
	fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	fmt.Fprintf(out, "Cache Hits:      %d\n", s.cacheHits)

	if len(s.latencies) > 0 {
		latencies := slices.Clone(s.latencies)
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(out, "P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, s.statusCodes[code])
	}
	return nil
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
