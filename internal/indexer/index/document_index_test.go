package index

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordSet map[string]bool

func (w wordSet) Contains(word string) bool { return w[word] }

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string][]int
	}{
		{
			name:    "trailing punctuation and case",
			content: "My oh my!",
			want:    map[string][]int{"my": {0, 6}, "oh": {3}},
		},
		{
			name:    "leading punctuation shifts the offset",
			content: `"quoted" word`,
			want:    map[string][]int{"quoted": {1}, "word": {9}},
		},
		{
			name:    "mixed whitespace",
			content: "a\t\tb\nc\r\nd",
			want:    map[string][]int{"a": {0}, "b": {3}, "c": {5}, "d": {8}},
		},
		{
			name:    "trailing whitespace",
			content: "the cat sat \n",
			want:    map[string][]int{"the": {0}, "cat": {4}, "sat": {8}},
		},
		{
			name:    "punctuation only words are dropped",
			content: "-- hello ... world !!",
			want:    map[string][]int{"hello": {3}, "world": {13}},
		},
		{
			name:    "inner punctuation is kept",
			content: "don't re-index e.g.",
			want:    map[string][]int{"don't": {0}, "re-index": {6}, "e.g": {15}},
		},
		{
			name:    "empty document",
			content: "",
			want:    map[string][]int{},
		},
		{
			name:    "whitespace only",
			content: " \n\t ",
			want:    map[string][]int{},
		},
		{
			name:    "repeated terms stay ascending",
			content: "the hair is red and the hair is long",
			want: map[string][]int{
				"the": {0, 20}, "hair": {4, 24}, "is": {9, 29},
				"red": {12}, "and": {16}, "long": {32},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Extract("doc.txt", []byte(tt.content))
			assert.Equal(t, "doc.txt", doc.Name())
			assert.Equal(t, tt.want, doc.terms)
		})
	}
}

func TestExtractNonASCIIIsNotLowerCased(t *testing.T) {
	doc := Extract("d", []byte("Ünïcode CAFÉ"))
	assert.Equal(t, []int{0}, doc.Positions("Ünïcode"))
	assert.Equal(t, []int{10}, doc.Positions("cafÉ"))
}

func TestExtractIsDeterministic(t *testing.T) {
	content := []byte("It was the best of times, it was the worst of times.")
	first := Extract("a", content)
	second := Extract("a", content)
	assert.Equal(t, first.terms, second.terms)
}

func TestExtractReaderMatchesExtract(t *testing.T) {
	content := "Call me Ishmael. Some years ago -- never mind how long precisely --"
	want := Extract("moby", []byte(content))

	got, err := ExtractReader("moby", iotest.OneByteReader(strings.NewReader(content)))
	require.NoError(t, err)
	assert.Equal(t, want.terms, got.terms)
}

func TestExtractReaderError(t *testing.T) {
	boom := errors.New("disk on fire")
	doc, err := ExtractReader("broken", iotest.ErrReader(boom))
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, boom)
}

func TestFilter(t *testing.T) {
	doc := Extract("d", []byte("the cat and the hat"))
	removed := doc.Filter(wordSet{"the": true, "and": true})

	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"cat", "hat"}, doc.Terms())
	assert.Equal(t, []int{4}, doc.Positions("cat"))
}

func TestDrainEmptiesTheIndex(t *testing.T) {
	doc := Extract("d", []byte("one two two"))
	got := map[string][]int{}
	doc.Drain(func(term string, positions []int) {
		got[term] = positions
	})

	assert.Equal(t, map[string][]int{"one": {0}, "two": {4, 8}}, got)
	assert.Zero(t, doc.TermCount())
}

func TestTrimPunctuation(t *testing.T) {
	assert.Equal(t, "hair", TrimPunctuation(`"hair,"`))
	assert.Equal(t, "", TrimPunctuation("?!"))
	assert.Equal(t, "a.b", TrimPunctuation("(a.b)"))
}

func TestDocumentIndexString(t *testing.T) {
	doc := Extract("d", []byte("b a"))
	assert.Equal(t, `d {"a": [2], "b": [0]}`, doc.String())
}
