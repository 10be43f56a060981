package index

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DocumentIndex is the inverted index of a single document: every term
// mapped to the ascending byte offsets at which it starts.
//
// A term is a run of non-whitespace bytes, ASCII-lower-cased, with leading
// and trailing ASCII punctuation removed. For "My oh my!" the index is
// {"my": [0, 6], "oh": [3]}.
type DocumentIndex struct {
	name  string
	terms map[string][]int
}

func NewDocumentIndex(name string) *DocumentIndex {
	return &DocumentIndex{
		name:  name,
		terms: make(map[string][]int),
	}
}

// Extract builds the DocumentIndex of content.
func Extract(name string, content []byte) *DocumentIndex {
	e := extractor{doc: NewDocumentIndex(name)}
	e.feed(content)
	e.finish()
	return e.doc
}

// ExtractReader builds a DocumentIndex from a stream. On a read error no
// index is returned.
func ExtractReader(name string, r io.Reader) (*DocumentIndex, error) {
	e := extractor{doc: NewDocumentIndex(name)}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		e.feed(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	e.finish()
	return e.doc, nil
}

func (d *DocumentIndex) Name() string {
	return d.name
}

// Positions returns the offsets recorded for term, or nil.
func (d *DocumentIndex) Positions(term string) []int {
	return d.terms[term]
}

func (d *DocumentIndex) TermCount() int {
	return len(d.terms)
}

// Terms returns the indexed terms in lexical order.
func (d *DocumentIndex) Terms() []string {
	terms := make([]string, 0, len(d.terms))
	for term := range d.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// StopWords is the membership oracle used to drop terms at index time.
type StopWords interface {
	Contains(word string) bool
}

// Filter removes every term the stop-word set contains and returns the
// number of terms removed.
func (d *DocumentIndex) Filter(stop StopWords) int {
	removed := 0
	for term := range d.terms {
		if stop.Contains(term) {
			delete(d.terms, term)
			removed++
		}
	}
	return removed
}

// Drain hands every (term, positions) pair to fn and empties the index.
// Ownership of each positions slice moves to fn.
func (d *DocumentIndex) Drain(fn func(term string, positions []int)) {
	for term, positions := range d.terms {
		fn(term, positions)
		delete(d.terms, term)
	}
}

func (d *DocumentIndex) String() string {
	var b strings.Builder
	b.WriteString(d.name)
	b.WriteString(" {")
	for i, term := range d.Terms() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %v", term, d.terms[term])
	}
	b.WriteString("}")
	return b.String()
}

// extractor scans bytes incrementally so that documents can be fed in
// chunks. pos counts every byte consumed, word or not.
type extractor struct {
	doc  *DocumentIndex
	pos  int
	word []byte
}

func (e *extractor) feed(p []byte) {
	for _, b := range p {
		if isSpace(b) {
			if len(e.word) > 0 {
				e.flush()
			}
		} else {
			e.word = append(e.word, toLower(b))
		}
		e.pos++
	}
}

func (e *extractor) finish() {
	if len(e.word) > 0 {
		e.flush()
	}
}

// flush records the pending word. The word occupies [pos-len(word), pos);
// the recorded offset is where the trimmed key starts.
func (e *extractor) flush() {
	raw := e.word
	start := e.pos - len(raw)
	lo, hi := trimBounds(raw)
	if hi > lo {
		key := strings.ToValidUTF8(string(raw[lo:hi]), "\uFFFD")
		e.doc.terms[key] = append(e.doc.terms[key], start+lo)
	}
	e.word = e.word[:0]
}

// TrimPunctuation strips ASCII punctuation from both ends of s, the same
// normalization applied to indexed words.
func TrimPunctuation(s string) string {
	lo, hi := trimBounds([]byte(s))
	return s[lo:hi]
}

func trimBounds(raw []byte) (int, int) {
	lo, hi := 0, len(raw)
	for lo < hi && IsPunctuation(raw[lo]) {
		lo++
	}
	for hi > lo && IsPunctuation(raw[hi-1]) {
		hi--
	}
	return lo, hi
}

// IsPunctuation reports whether b is ASCII punctuation:
// !"#$%&'()*+,-./:;<=>?@[\]^_`{|}~
func IsPunctuation(b byte) bool {
	return (b >= '!' && b <= '/') ||
		(b >= ':' && b <= '@') ||
		(b >= '[' && b <= '`') ||
		(b >= '{' && b <= '~')
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
