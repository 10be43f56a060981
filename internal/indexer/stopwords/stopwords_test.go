package stopwords

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnglish(t *testing.T) {
	s := English()
	assert.True(t, s.Contains("the"))
	assert.True(t, s.Contains("and"))
	assert.False(t, s.Contains("cat"))
	assert.False(t, s.Contains("The"), "lookups are exact; callers lower-case first")
}

func TestNilSetIsEmpty(t *testing.T) {
	var s *Set
	assert.False(t, s.Contains("the"))
	assert.Zero(t, s.Len())
}

func TestRead(t *testing.T) {
	input := "# common words\nThe\n\n  of \nand\n"
	s, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("the"))
	assert.True(t, s.Contains("of"))
	assert.False(t, s.Contains("# common words"))
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, English().Len(), s.Len())

	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo\nbar\n"), 0o644))
	s, err = Load(path)
	require.NoError(t, err)
	assert.True(t, s.Contains("foo"))
	assert.False(t, s.Contains("the"))

	_, err = Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
