package index

import "sort"

// MemoryIndex is the global inverted index: term -> document id -> the
// positions recorded by that document's DocumentIndex.
//
// It is populated once by a crawl and only read afterwards, so it carries
// no lock. Concurrent readers are safe as long as no Add runs alongside
// them.
type MemoryIndex struct {
	terms map[string]map[uint32][]int
	docs  map[uint32]struct{}
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		terms: make(map[string]map[uint32][]int),
		docs:  make(map[uint32]struct{}),
	}
}

// Add drains doc into the index under id. An existing (term, id) entry is
// overwritten. doc is empty afterwards and must not be reused.
func (m *MemoryIndex) Add(doc *DocumentIndex, id uint32) {
	doc.Drain(func(term string, positions []int) {
		docs, ok := m.terms[term]
		if !ok {
			docs = make(map[uint32][]int)
			m.terms[term] = docs
		}
		docs[id] = positions
	})
	m.docs[id] = struct{}{}
}

// Search returns the postings of term keyed by document id. The returned
// map is shared with the index and must be treated as read-only.
func (m *MemoryIndex) Search(term string) (map[uint32][]int, bool) {
	docs, ok := m.terms[term]
	return docs, ok
}

// Postings returns the positions of term in document id, or nil.
func (m *MemoryIndex) Postings(term string, id uint32) []int {
	return m.terms[term][id]
}

func (m *MemoryIndex) TermCount() int {
	return len(m.terms)
}

// DocumentCount is the number of distinct document ids merged so far.
func (m *MemoryIndex) DocumentCount() int {
	return len(m.docs)
}

// DocIDs returns the ids containing term in ascending order.
func (m *MemoryIndex) DocIDs(term string) []uint32 {
	docs := m.terms[term]
	ids := make([]uint32, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
