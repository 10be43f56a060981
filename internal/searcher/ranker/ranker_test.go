package ranker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSort(t *testing.T) {
	results := []Result{
		{DocID: 3, Rank: 1},
		{DocID: 1, Rank: 4},
		{DocID: 0, Rank: 1},
		{DocID: 2, Rank: 4},
	}
	Sort(results)
	assert.Equal(t, []Result{
		{DocID: 1, Rank: 4},
		{DocID: 2, Rank: 4},
		{DocID: 0, Rank: 1},
		{DocID: 3, Rank: 1},
	}, results)
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	results := make([]Result, 200)
	for i := range results {
		results[i] = Result{DocID: uint32(i), Rank: rng.Intn(10)}
	}
	rng.Shuffle(len(results), func(i, j int) { results[i], results[j] = results[j], results[i] })

	sorted := append([]Result(nil), results...)
	Sort(sorted)

	for _, k := range []int{1, 5, 10, 199} {
		assert.Equal(t, sorted[:k], TopK(results, k), "k=%d", k)
	}
}

func TestTopKEdgeCases(t *testing.T) {
	results := []Result{{DocID: 1, Rank: 1}, {DocID: 0, Rank: 2}}
	want := []Result{{DocID: 0, Rank: 2}, {DocID: 1, Rank: 1}}

	assert.Equal(t, want, TopK(results, 0))
	assert.Equal(t, want, TopK(results, 10))
	assert.Empty(t, TopK(nil, 3))
	assert.Equal(t, []Result{{DocID: 1, Rank: 1}, {DocID: 0, Rank: 2}}, results, "input is not reordered")
}

func BenchmarkTopK(b *testing.B) {
	results := make([]Result, 10000)
	for i := range results {
		results[i] = Result{DocID: uint32(i), Rank: i % 97}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = TopK(results, 10)
	}
}
