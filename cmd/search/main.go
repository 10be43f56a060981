package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "search",
		Usage: "Index a directory of text files and query it interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"DS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "directory to index (overrides indexer.root)",
			},
			&cli.BoolFlag{
				Name:    "stop-words",
				Aliases: []string{"s"},
				Usage:   "exclude stop words from queries",
			},
			&cli.StringFlag{
				Name:  "stop-words-file",
				Usage: "file with one stop word per line (default: built-in English list)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "glob of files to index, relative to root; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "glob of files or directories to skip, relative to root; repeatable",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "run a single query and exit",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "print at most this many results per query (0 = all)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.SetupWriter(os.Stderr, c.String("log-level"), "text")

	stop, err := stopwords.Load(cfg.Search.StopWordsFile)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintln(out, "Welcome to docsearch!")
	eng, err := buildIndex(ctx, indexer.NewBuildConfig(cfg, stop, nil), crawler.FileSystem{}, out, c.App.ErrWriter)
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	if q := c.String("query"); q != "" {
		return answer(ctx, eng, q, limit, out)
	}
	return repl(ctx, eng, os.Stdin, out, c.App.ErrWriter, limit)
}

// loadConfig reads the config file, when one is given, and lets flags
// override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("root") {
		cfg.Indexer.Root = c.String("root")
	}
	if c.IsSet("stop-words") {
		cfg.Search.StopWords = c.Bool("stop-words")
	}
	if c.IsSet("stop-words-file") {
		cfg.Search.StopWordsFile = c.String("stop-words-file")
	}
	if c.IsSet("include") {
		cfg.Indexer.Include = c.StringSlice("include")
	}
	if c.IsSet("exclude") {
		cfg.Indexer.Exclude = c.StringSlice("exclude")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildIndex crawls the corpus. The progress line goes to progress as a
// whole; the summary goes to out.
func buildIndex(ctx context.Context, cfg indexer.BuildConfig, res crawler.Resource, out, progress io.Writer) (*indexer.Engine, error) {
	fmt.Fprint(progress, "Indexing documents... ")
	start := time.Now()
	eng, err := indexer.Build(ctx, cfg, res)
	if err != nil {
		fmt.Fprintln(progress, "failed!")
		return nil, err
	}
	fmt.Fprintln(progress, "done!")
	fmt.Fprintf(out, "Indexed %d documents (%d terms) in %.2f seconds\n\n",
		eng.DocumentCount(), eng.TermCount(), time.Since(start).Seconds())
	return eng, nil
}

// repl reads one query per line until EOF or ctx is cancelled. The prompt
// goes to prompt so results on out can be piped.
func repl(ctx context.Context, eng *indexer.Engine, in io.Reader, out, prompt io.Writer, limit int) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		fmt.Fprint(prompt, "Enter a query: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(prompt)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(prompt)
				select {
				case err := <-errs:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := answer(ctx, eng, line, limit, out); err != nil {
				slog.Warn("query failed", "query", line, "error", err)
				fmt.Fprintf(out, "error: %v\n\n", err)
			}
		}
	}
}

func answer(ctx context.Context, eng *indexer.Engine, query string, limit int, out io.Writer) error {
	start := time.Now()
	results, err := eng.Search(ctx, query)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		fmt.Fprintln(out)
		return nil
	}
	shown := results
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Fprintf(out, "  %s (%d)\n", r.DocName, r.Rank)
	}
	fmt.Fprintf(out, "Found %d results in %d us\n\n", len(results), elapsed.Microseconds())
	return nil
}
