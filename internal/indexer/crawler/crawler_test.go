package crawler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCrawlFileSystem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "the cat sat")
	writeFile(t, filepath.Join(root, "nested", "deeper", "b.txt"), "the dog sat")
	writeFile(t, filepath.Join(root, "nested", "c.md"), "a bird")

	c, err := New(FileSystem{}, Options{})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Table.Count())
	assert.Equal(t, 3, res.Index.DocumentCount())

	for _, name := range []string{"a.txt", "nested/deeper/b.txt", "nested/c.md"} {
		full := filepath.Join(root, name)
		id, ok := res.Table.ID(full)
		require.True(t, ok, name)
		got, ok := res.Table.Name(id)
		require.True(t, ok)
		assert.Equal(t, full, got)
	}

	aID, _ := res.Table.ID(filepath.Join(root, "a.txt"))
	bID, _ := res.Table.ID(filepath.Join(root, "nested", "deeper", "b.txt"))
	sat, ok := res.Index.Search("sat")
	require.True(t, ok)
	assert.Equal(t, map[uint32][]int{aID: {8}, bID: {8}}, sat)
}

func TestCrawlEmptyDirectory(t *testing.T) {
	c, err := New(FileSystem{}, Options{})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, res.Table.Count())
	assert.Zero(t, res.Index.TermCount())
}

func TestCrawlMissingRootIsIOError(t *testing.T) {
	c, err := New(FileSystem{}, Options{})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCrawlSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(root, "real.txt"), "alpha")
	writeFile(t, filepath.Join(outside, "target.txt"), "beta")
	writeFile(t, filepath.Join(outside, "dir", "hidden.txt"), "gamma")
	require.NoError(t, os.Symlink(filepath.Join(outside, "target.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "dir"), filepath.Join(root, "linkdir")))

	c, err := New(FileSystem{}, Options{})
	require.NoError(t, err)
	res, err := c.Crawl(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Table.Count())
	_, ok := res.Index.Search("beta")
	assert.True(t, ok, "symlinked files are read")
	_, ok = res.Index.Search("gamma")
	assert.False(t, ok, "symlinked directories are not followed")
}

func TestCrawlDiscoveryOrder(t *testing.T) {
	res := MapResource{Files: map[string]string{
		"docs/a.txt":     "one",
		"docs/b.txt":     "two",
		"docs/sub/c.txt": "three",
	}}
	c, err := New(res, Options{})
	require.NoError(t, err)
	out, err := c.Crawl(context.Background(), "docs")
	require.NoError(t, err)

	for i, want := range []string{"docs/a.txt", "docs/b.txt", "docs/sub/c.txt"} {
		name, ok := out.Table.Name(uint32(i))
		require.True(t, ok)
		assert.Equal(t, want, name)
	}
}

func TestCrawlIncludeExclude(t *testing.T) {
	res := MapResource{Files: map[string]string{
		"root/readme.md":          "readme",
		"root/notes.txt":          "notes",
		"root/vendor/lib.txt":     "vendored",
		"root/src/deep/code.txt":  "code",
		"root/src/deep/image.png": "binary",
	}}
	c, err := New(res, Options{
		Include: []string{"**/*.txt", "*.md"},
		Exclude: []string{"vendor", "vendor/**"},
	})
	require.NoError(t, err)
	out, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, 3, out.Table.Count())
	for _, name := range []string{"root/readme.md", "root/notes.txt", "root/src/deep/code.txt"} {
		_, ok := out.Table.ID(name)
		assert.True(t, ok, name)
	}
	_, ok := out.Index.Search("vendored")
	assert.False(t, ok)
}

func TestCrawlExcludedDirectoryIsNotListed(t *testing.T) {
	res := MapResource{
		Files: map[string]string{"r/ok.txt": "fine", "r/secret/x.txt": "nope"},
		Fail:  map[string]error{"r/secret": errors.New("permission denied")},
	}
	c, err := New(res, Options{Exclude: []string{"secret"}})
	require.NoError(t, err)
	out, err := c.Crawl(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Table.Count())
}

func TestCrawlInvalidPattern(t *testing.T) {
	_, err := New(MapResource{}, Options{Include: []string{"[unclosed"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCrawlReadFailureAborts(t *testing.T) {
	boom := errors.New("disk on fire")
	res := MapResource{
		Files: map[string]string{"r/a.txt": "fine", "r/b.txt": "broken"},
		Fail:  map[string]error{"r/b.txt": boom},
	}
	c, err := New(res, Options{})
	require.NoError(t, err)
	out, err := c.Crawl(context.Background(), "r")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.ErrorIs(t, err, boom)
}

func TestCrawlIndexTimeStopWords(t *testing.T) {
	res := MapResource{Files: map[string]string{"r/a.txt": "the cat and the hat"}}

	keep, err := New(res, Options{StopWords: stopwords.English(), IndexStopWords: true})
	require.NoError(t, err)
	out, err := keep.Crawl(context.Background(), "r")
	require.NoError(t, err)
	_, ok := out.Index.Search("the")
	assert.True(t, ok)

	drop, err := New(res, Options{StopWords: stopwords.English()})
	require.NoError(t, err)
	out, err = drop.Crawl(context.Background(), "r")
	require.NoError(t, err)
	_, ok = out.Index.Search("the")
	assert.False(t, ok)
	assert.Equal(t, []int{4}, out.Index.Postings("cat", 0))
}

func TestCrawlHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := New(MapResource{Files: map[string]string{"r/a.txt": "x"}}, Options{})
	require.NoError(t, err)
	out, err := c.Crawl(ctx, "r")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapResourceListing(t *testing.T) {
	res := MapResource{Files: map[string]string{"a/x.txt": "", "a/b/y.txt": "", "a/b/z.txt": ""}}
	entries, err := res.ListDirectory("a")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Path: "a/b", IsDir: true}, {Path: "a/x.txt"}}, entries)

	_, err = res.ListDirectory("missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = res.ReadFile("a/nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
