package parser

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/stopwords"
)

type Kind int

const (
	KindTerm Kind = iota
	KindPhrase
)

func (k Kind) String() string {
	if k == KindPhrase {
		return "Phrase"
	}
	return "Term"
}

// Token is one unit of a query: a single word, or the verbatim text between
// a pair of double quotes.
type Token struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

func (t Token) String() string {
	return t.Kind.String() + "(" + t.Text + ")"
}

type QueryPlan struct {
	Tokens   []Token
	RawQuery string
}

// Key is the canonical form of the plan: two queries with the same key
// always produce the same results against the same index.
func (p *QueryPlan) Key() string {
	parts := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

func (p *QueryPlan) Empty() bool {
	return len(p.Tokens) == 0
}

func Parse(query string, stop *stopwords.Set) *QueryPlan {
	return &QueryPlan{
		Tokens:   Tokenize(query, stop),
		RawQuery: query,
	}
}

// Tokenize splits a query into terms and quoted phrases, in order.
//
// The query is ASCII-lower-cased and trimmed. When stop is non-empty, stop
// words are removed from the unquoted parts only. A double quote toggles
// between term and phrase mode; an unterminated phrase runs to the end of
// the query. Terms are trimmed of surrounding punctuation the same way
// indexed words are, and dropped if nothing is left. Phrases that contain
// only whitespace are dropped.
//
//	steve "the hair" hairington  ->  Term(steve) Phrase(the hair) Term(hairington)
func Tokenize(query string, stop *stopwords.Set) []Token {
	query = strings.TrimSpace(lowerASCII(query))
	if stop.Len() > 0 {
		query = removeStopWords(query, stop)
	}

	var (
		tokens   []Token
		buf      strings.Builder
		inPhrase bool
	)
	flushTerm := func() {
		if term := index.TrimPunctuation(buf.String()); term != "" {
			tokens = append(tokens, Token{Kind: KindTerm, Text: term})
		}
		buf.Reset()
	}
	flushPhrase := func() {
		if text := buf.String(); strings.TrimSpace(text) != "" {
			tokens = append(tokens, Token{Kind: KindPhrase, Text: text})
		}
		buf.Reset()
	}

	for _, r := range query {
		switch {
		case r == '"' && inPhrase:
			flushPhrase()
			inPhrase = false
		case r == '"':
			flushTerm()
			inPhrase = true
		case inPhrase:
			buf.WriteRune(r)
		case unicode.IsSpace(r):
			flushTerm()
		default:
			buf.WriteRune(r)
		}
	}
	if inPhrase {
		flushPhrase()
	} else {
		flushTerm()
	}
	return tokens
}

// removeStopWords drops stop words from the segments outside double quotes
// and leaves quoted segments untouched.
func removeStopWords(query string, stop *stopwords.Set) string {
	segments := strings.Split(query, `"`)
	for i := 0; i < len(segments); i += 2 {
		words := strings.Fields(segments[i])
		kept := words[:0]
		for _, w := range words {
			if !stop.Contains(index.TrimPunctuation(w)) {
				kept = append(kept, w)
			}
		}
		segments[i] = strings.Join(kept, " ")
	}
	return strings.Join(segments, `"`)
}

func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
