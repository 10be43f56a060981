// Package stopwords provides the immutable stop-word set consulted by the
// query tokenizer and, when configured, by the crawler.
package stopwords

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

var english = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "did", "do",
	"does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into",
	"is", "it", "its", "itself", "just", "me", "more", "most", "my",
	"myself", "no", "nor", "not", "now", "of", "off", "on", "once", "only",
	"or", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
	"she", "should", "so", "some", "such", "than", "that", "the", "their",
	"theirs", "them", "themselves", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "you", "your", "yours", "yourself",
	"yourselves",
}

// Set answers membership queries for stop words. The zero value and a nil
// *Set are both empty.
type Set struct {
	words map[string]struct{}
}

// New builds a Set from the given words, lower-cased.
func New(words ...string) *Set {
	s := &Set{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			s.words[w] = struct{}{}
		}
	}
	return s
}

// English returns the built-in English stop-word list.
func English() *Set {
	return New(english...)
}

// Read parses one word per line. Blank lines and lines starting with '#'
// are ignored.
func Read(r io.Reader) (*Set, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stop words: %w", err)
	}
	return New(words...), nil
}

// Load reads a stop-word file, or returns the English list when path is empty.
func Load(path string) (*Set, error) {
	if path == "" {
		return English(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stop words file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func (s *Set) Contains(word string) bool {
	if s == nil {
		return false
	}
	_, ok := s.words[word]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}
