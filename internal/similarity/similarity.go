// Package similarity scores how close two headlines are using keyword overlap.
package similarity

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/deusflow/feedgen/internal/locale"
)

// MinKeywordLength is the minimum rune count of a keyword.
const MinKeywordLength = 4

// Set is a keyword set.
type Set map[string]struct{}

func (s Set) Has(w string) bool {
	_, ok := s[w]
	return ok
}

// NormalizeText lowercases, replaces punctuation with spaces and collapses whitespace.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
			return r
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, strings.ToLower(text))
	return strings.Join(strings.Fields(mapped), " ")
}

type Engine struct {
	tables *locale.Tables
}

func New(tables *locale.Tables) *Engine {
	if tables == nil {
		tables = locale.Default()
	}
	return &Engine{tables: tables}
}

// Keywords returns the normalized tokens of text that are long enough and not stopwords.
func (e *Engine) Keywords(text string) Set {
	out := Set{}
	if text == "" {
		return out
	}
	text = e.tables.StripHeadlinePrefix(text)
	for _, w := range strings.Fields(NormalizeText(text)) {
		if utf8.RuneCountInString(w) < MinKeywordLength || e.tables.IsStopword(w) {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Similarity is the Jaccard index of the two keyword sets, boosted by the share of
// keywords both texts wrote in capitals. The result is in [0, 1] and symmetric.
func (e *Engine) Similarity(a, b string) float64 {
	ka, kb := e.Keywords(a), e.Keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}

	shared := 0
	for w := range ka {
		if kb.Has(w) {
			shared++
		}
	}
	union := len(ka) + len(kb) - shared
	base := float64(shared) / float64(union)

	ea, eb := entities(a, ka), entities(b, kb)
	sharedEntities := 0
	for w := range ea {
		if eb.Has(w) {
			sharedEntities++
		}
	}
	if sharedEntities == 0 {
		return base
	}
	return min(1.0, base+float64(sharedEntities)/float64(union))
}

// entities are keywords that appear in text as an all-capitals token.
func entities(text string, keywords Set) Set {
	out := Set{}
	for _, token := range strings.Fields(text) {
		if !isUpper(token) {
			continue
		}
		if w := NormalizeText(token); keywords.Has(w) {
			out[w] = struct{}{}
		}
	}
	return out
}

// isUpper reports whether s has at least one cased rune and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsLower(r), unicode.IsTitle(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}

var defaultEngine = sync.OnceValue(func() *Engine { return New(nil) })

// Keywords uses the built-in locale tables.
func Keywords(text string) Set { return defaultEngine().Keywords(text) }

// Similarity uses the built-in locale tables.
func Similarity(a, b string) float64 { return defaultEngine().Similarity(a, b) }
