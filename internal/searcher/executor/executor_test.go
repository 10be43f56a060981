package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func build(docs ...string) *Executor {
	table := index.NewDocumentTable()
	mem := index.NewMemoryIndex()
	for i, content := range docs {
		name := fmt.Sprintf("doc%d", i)
		mem.Add(index.Extract(name, []byte(content)), table.Add(name))
	}
	return New(table, mem)
}

func search(t *testing.T, e *Executor, query string) []ranker.Result {
	t.Helper()
	results, err := e.Execute(context.Background(), parser.Parse(query, nil))
	require.NoError(t, err)
	return results
}

func TestExecuteTerms(t *testing.T) {
	e := build("the cat sat", "the dog sat")

	assert.Equal(t, []ranker.Result{
		{DocID: 0, DocName: "doc0", Rank: 1},
		{DocID: 1, DocName: "doc1", Rank: 1},
	}, search(t, e, "sat"))

	assert.Equal(t, []ranker.Result{{DocID: 0, DocName: "doc0", Rank: 1}}, search(t, e, "cat"))

	assert.Equal(t, []ranker.Result{
		{DocID: 0, DocName: "doc0", Rank: 2},
		{DocID: 1, DocName: "doc1", Rank: 2},
	}, search(t, e, "the sat"))

	assert.Equal(t, []ranker.Result{{DocID: 1, DocName: "doc1", Rank: 2}}, search(t, e, "DOG sat!"))
}

func TestExecuteRankOrdering(t *testing.T) {
	e := build("go", "go go go", "go go")
	got := search(t, e, "go")
	require.Len(t, got, 3)
	assert.Equal(t, []uint32{1, 2, 0}, []uint32{got[0].DocID, got[1].DocID, got[2].DocID})
	assert.Equal(t, []int{3, 2, 1}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
}

func TestExecuteMissingTermEmptiesResult(t *testing.T) {
	e := build("the cat sat", "the dog sat")
	assert.Empty(t, search(t, e, "sat unicorn"))
	assert.Empty(t, search(t, e, "unicorn"))
	assert.Empty(t, search(t, e, "cat dog"))
}

func TestExecuteIsCommutative(t *testing.T) {
	e := build("a b c", "b c d", "c d a", "a c")
	for _, pair := range [][2]string{{"a c", "c a"}, {"b c", "c b"}, {`"c d" a`, `a "c d"`}} {
		assert.Equal(t, search(t, e, pair[0]), search(t, e, pair[1]), pair[0])
	}
}

func TestExecutePhrase(t *testing.T) {
	e := build(
		"the hair is red and the hair is long",
		"hair the",
		"the  hair",
		"theory hair",
	)

	got := search(t, e, `"the hair"`)
	assert.Equal(t, []ranker.Result{{DocID: 0, DocName: "doc0", Rank: 4}}, got)

	assert.Equal(t, []ranker.Result{{DocID: 1, DocName: "doc1", Rank: 2}}, search(t, e, `"hair the"`))
	assert.Empty(t, search(t, e, `"red long"`))
	assert.Empty(t, search(t, e, `"hair unicorn"`))
}

func TestExecutePhraseMatchesAnyOccurrence(t *testing.T) {
	e := build("cat x cat sat")
	assert.Equal(t, []ranker.Result{{DocID: 0, DocName: "doc0", Rank: 3}}, search(t, e, `"cat sat"`))
}

func TestExecuteSingleWordPhrase(t *testing.T) {
	e := build("the cat sat", "cat cat")
	assert.Equal(t, search(t, e, "cat"), search(t, e, `"cat"`))
}

func TestExecutePhraseAndTerm(t *testing.T) {
	e := build("steve the hair hairington", "steve hairington", "the hair")
	got := search(t, e, `steve "the hair" hairington`)
	assert.Equal(t, []ranker.Result{{DocID: 0, DocName: "doc0", Rank: 4}}, got)
}

func TestExecuteStopWordsAtQueryTime(t *testing.T) {
	e := build("the cat", "a cat", "dog")
	plan := parser.Parse("the cat", stopwords.English())
	got, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestExecuteEmptyPlan(t *testing.T) {
	e := build("anything")
	got := search(t, e, "   ")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSearchTokenEmptyPhrase(t *testing.T) {
	e := build("anything")
	_, err := e.SearchToken(parser.Token{Kind: parser.KindPhrase, Text: "   "})
	assert.ErrorIs(t, err, apperrors.ErrEmptyPhrase)

	_, err = e.Execute(context.Background(), &parser.QueryPlan{
		Tokens: []parser.Token{{Kind: parser.KindPhrase, Text: "?!"}},
	})
	assert.ErrorIs(t, err, apperrors.ErrEmptyPhrase)
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
}

func TestEmptyPhraseFailsRegardlessOfOrder(t *testing.T) {
	e := build("the cat sat")
	for _, query := range []string{`zzz "!!"`, `"!!" zzz`, `cat "!!"`, `"!!" cat`} {
		_, err := e.Execute(context.Background(), parser.Parse(query, nil))
		assert.ErrorIs(t, err, apperrors.ErrEmptyPhrase, query)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err), query)
	}
}

func TestExecuteCancelled(t *testing.T) {
	e := build("cat")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, parser.Parse("cat", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntersectSumsRanks(t *testing.T) {
	got := intersect([][]ranker.Result{
		{{DocID: 1, Rank: 2}, {DocID: 2, Rank: 1}, {DocID: 3, Rank: 5}},
		{{DocID: 3, Rank: 1}, {DocID: 1, Rank: 1}},
	})
	ranker.Sort(got)
	assert.Equal(t, []ranker.Result{{DocID: 3, Rank: 6}, {DocID: 1, Rank: 3}}, got)
	assert.Empty(t, intersect(nil))
}

func BenchmarkExecutePhrase(b *testing.B) {
	docs := make([]string, 1000)
	for i := range docs {
		docs[i] = fmt.Sprintf("document %d talks about the distributed search engine and inverted index", i)
	}
	e := build(docs...)
	plan := parser.Parse(`"search engine" inverted`, nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Execute(context.Background(), plan)
	}
}

func TestSummarize(t *testing.T) {
	e := build("go", "go go go", "go go", "rust")
	plan := parser.Parse(`Go`, nil)
	matches, err := e.Match(context.Background(), plan)
	require.NoError(t, err)

	res := Summarize(plan, matches, 2)
	assert.Equal(t, "Go", res.Query)
	assert.Equal(t, []string{"Term(go)"}, res.Tokens)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, []ranker.Result{
		{DocID: 1, DocName: "doc1", Rank: 3},
		{DocID: 2, DocName: "doc2", Rank: 2},
	}, res.Results)

	empty := Summarize(parser.Parse("nothing", nil), nil, 10)
	assert.NotNil(t, empty.Results)
	assert.Zero(t, empty.TotalHits)
}
