package crawler

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one child of a listed directory. Path is the full path that can
// be handed back to ListDirectory or ReadFile.
type Entry struct {
	Path  string
	IsDir bool
}

// Resource is the filesystem capability the crawler needs. Entries that are
// neither directories nor readable files must be left out by ListDirectory.
type Resource interface {
	ListDirectory(path string) ([]Entry, error)
	ReadFile(path string) ([]byte, error)
}

// FileSystem reads from the local disk. Symlinked directories are not
// followed; symlinked files are read through the link. Devices, sockets
// and pipes are skipped.
type FileSystem struct{}

func (FileSystem) ListDirectory(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		full := filepath.Join(dir, de.Name())
		mode := de.Type()
		switch {
		case mode.IsDir():
			entries = append(entries, Entry{Path: full, IsDir: true})
		case mode.IsRegular():
			entries = append(entries, Entry{Path: full})
		case mode&fs.ModeSymlink != 0:
			info, err := os.Stat(full)
			if err != nil {
				return nil, fmt.Errorf("resolving symlink %s: %w", full, err)
			}
			if info.Mode().IsRegular() {
				entries = append(entries, Entry{Path: full})
			}
		}
	}
	return entries, nil
}

func (FileSystem) ReadFile(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return data, nil
}

// MapResource is an in-memory Resource keyed by slash-separated file paths.
// Directories are implied by the file paths. Paths listed in Fail return an
// error from both ListDirectory and ReadFile.
type MapResource struct {
	Files map[string]string
	Fail  map[string]error
}

func (m MapResource) ListDirectory(dir string) ([]Entry, error) {
	if err := m.Fail[dir]; err != nil {
		return nil, err
	}
	dir = path.Clean(dir)
	prefix := dir + "/"
	if dir == "." {
		prefix = ""
	}

	seenDirs := make(map[string]bool)
	var entries []Entry
	found := false
	for name := range m.Files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		found = true
		rest := name[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			sub := prefix + rest[:i]
			if !seenDirs[sub] {
				seenDirs[sub] = true
				entries = append(entries, Entry{Path: sub, IsDir: true})
			}
			continue
		}
		entries = append(entries, Entry{Path: name})
	}
	if !found {
		return nil, fmt.Errorf("listing %s: %w", dir, fs.ErrNotExist)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m MapResource) ReadFile(file string) ([]byte, error) {
	if err := m.Fail[file]; err != nil {
		return nil, err
	}
	content, ok := m.Files[file]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", file, fs.ErrNotExist)
	}
	return []byte(content), nil
}
