package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// SearchResult is an executed query as served over HTTP and stored in the
// result cache. TotalHits counts every match; Results holds at most the
// requested limit.
type SearchResult struct {
	Query     string          `json:"query"`
	Tokens    []string        `json:"tokens"`
	TotalHits int             `json:"total_hits"`
	Results   []ranker.Result `json:"results"`
}

// Summarize keeps the best limit results, in order. results need not be
// sorted.
func Summarize(plan *parser.QueryPlan, results []ranker.Result, limit int) *SearchResult {
	tokens := make([]string, len(plan.Tokens))
	for i, t := range plan.Tokens {
		tokens[i] = t.String()
	}
	top := ranker.TopK(results, limit)
	if top == nil {
		top = []ranker.Result{}
	}
	return &SearchResult{
		Query:     plan.RawQuery,
		Tokens:    tokens,
		TotalHits: len(results),
		Results:   top,
	}
}

// Executor runs query plans against one immutable index. It holds no
// mutable state and is safe for concurrent use.
type Executor struct {
	table  *index.DocumentTable
	mem    *index.MemoryIndex
	logger *slog.Logger
}

func New(table *index.DocumentTable, mem *index.MemoryIndex) *Executor {
	return &Executor{
		table:  table,
		mem:    mem,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute returns the documents matching every token of the plan, ranks
// summed across tokens, sorted by rank descending then document id.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan) ([]ranker.Result, error) {
	results, err := e.Match(ctx, plan)
	if err != nil {
		return nil, err
	}
	ranker.Sort(results)
	return results, nil
}

// Match is Execute without the final ordering.
func (e *Executor) Match(ctx context.Context, plan *parser.QueryPlan) ([]ranker.Result, error) {
	if plan.Empty() {
		return []ranker.Result{}, nil
	}
	// An empty phrase fails the query wherever it appears.
	for _, token := range plan.Tokens {
		if token.Kind != parser.KindPhrase {
			continue
		}
		if _, err := phraseWords(token.Text); err != nil {
			return nil, fmt.Errorf("searching %s: %w", token, err)
		}
	}
	lists := make([][]ranker.Result, 0, len(plan.Tokens))
	for _, token := range plan.Tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("executing query: %w", err)
		}
		results, err := e.SearchToken(token)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", token, err)
		}
		if len(results) == 0 {
			e.logger.Debug("token has no matches", "query", plan.RawQuery, "token", token.String())
			return []ranker.Result{}, nil
		}
		lists = append(lists, results)
	}

	merged := intersect(lists)
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"tokens", len(plan.Tokens),
		"results", len(merged),
	)
	return merged, nil
}

// SearchToken returns the unordered matches of a single token.
func (e *Executor) SearchToken(token parser.Token) ([]ranker.Result, error) {
	switch token.Kind {
	case parser.KindPhrase:
		return e.searchPhrase(token.Text)
	default:
		return e.searchTerm(token.Text), nil
	}
}

func (e *Executor) searchTerm(term string) []ranker.Result {
	docs, ok := e.mem.Search(term)
	if !ok {
		return nil
	}
	results := make([]ranker.Result, 0, len(docs))
	for id, positions := range docs {
		results = append(results, e.result(id, len(positions)))
	}
	return results
}

// searchPhrase finds documents where the phrase words occur back to back:
// each word must start exactly one byte after the previous word ends. The
// first complete match in a document is enough. The rank is the sum of each
// phrase word's frequency in that document.
func (e *Executor) searchPhrase(text string) ([]ranker.Result, error) {
	words, err := phraseWords(text)
	if err != nil {
		return nil, err
	}

	postings := make([]map[uint32][]int, len(words))
	for i, w := range words {
		docs, ok := e.mem.Search(w)
		if !ok {
			return nil, nil
		}
		postings[i] = docs
	}

	var results []ranker.Result
	for id, starts := range postings[0] {
		if !matchesFrom(id, starts, words, postings) {
			continue
		}
		rank := 0
		for _, docs := range postings {
			rank += len(docs[id])
		}
		results = append(results, e.result(id, rank))
	}
	return results, nil
}

// phraseWords splits a phrase into its indexed words, or fails with
// ErrEmptyPhrase when punctuation trimming leaves nothing.
func phraseWords(text string) ([]string, error) {
	var words []string
	for _, w := range strings.Fields(text) {
		if w = index.TrimPunctuation(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyPhrase, http.StatusBadRequest, "phrase %q has no words", text)
	}
	return words, nil
}

func matchesFrom(id uint32, starts []int, words []string, postings []map[uint32][]int) bool {
	for _, start := range starts {
		prev := start
		matched := true
		for i := 1; i < len(words); i++ {
			want := prev + len(words[i-1]) + 1
			if !contains(postings[i][id], want) {
				matched = false
				break
			}
			prev = want
		}
		if matched {
			return true
		}
	}
	return false
}

func contains(positions []int, want int) bool {
	i := sort.SearchInts(positions, want)
	return i < len(positions) && positions[i] == want
}

func (e *Executor) result(id uint32, rank int) ranker.Result {
	name, _ := e.table.Name(id)
	return ranker.Result{DocID: id, DocName: name, Rank: rank}
}

// intersect keeps the documents present in every list and sums their
// ranks. It starts from the shortest list.
func intersect(lists [][]ranker.Result) []ranker.Result {
	if len(lists) == 0 {
		return []ranker.Result{}
	}
	shortest := 0
	for i, l := range lists {
		if len(l) < len(lists[shortest]) {
			shortest = i
		}
	}

	acc := make(map[uint32]ranker.Result, len(lists[shortest]))
	for _, r := range lists[shortest] {
		acc[r.DocID] = r
	}
	for i, l := range lists {
		if i == shortest {
			continue
		}
		ranks := make(map[uint32]int, len(l))
		for _, r := range l {
			ranks[r.DocID] += r.Rank
		}
		for id, r := range acc {
			rank, ok := ranks[id]
			if !ok {
				delete(acc, id)
				continue
			}
			r.Rank += rank
			acc[id] = r
		}
	}

	out := make([]ranker.Result, 0, len(acc))
	for _, r := range acc {
		out = append(out, r)
	}
	return out
}
