// Package search implements the hybrid lexical+semantic Search Engine:
// a tokenized inverted index over stored Patterns for exact/fuzzy term
// matching, MinHash+embedding signatures for semantic matching, and a
// ranking pass that penalizes staleness and over-evolved lineages.
// Grounded on the teacher's SparseRetriever (internal/retrieval/sparse.go)
// keyword-extraction and tiered-ranking shape, generalized from a
// ripgrep-over-files search to a DB-backed tokenized index over Patterns
// (no external process, no filesystem scan — spec.md §4.3 calls for a
// self-contained index, not a shelled-out grep).
package search

import (
	"regexp"
	"strings"
)

var (
	wordPattern   = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)
	quotedPattern = regexp.MustCompile(`["'` + "`" + `]([a-zA-Z_][a-zA-Z0-9_]*)["'` + "`" + `]`)
)

// Intent is the parsed form of a free-text search query: a set of
// weighted terms plus a few coarse signals that shape ranking (spec.md
// §4.3 "intent parsing").
type Intent struct {
	Terms        []string
	Weights      map[string]float64
	QuotedTerms  []string
	LanguageHint string
}

// languageHints maps loose query vocabulary to a canonical language tag,
// so "in python" or "a go function" narrows the search the way a human
// would expect without requiring an explicit --language flag.
var languageHints = map[string]string{
	"python": "python", "py": "python",
	"golang": "go", "go": "go",
	"javascript": "javascript", "js": "javascript",
	"typescript": "typescript", "ts": "typescript",
	"rust": "rust", "rs": "rust",
	"java": "java",
	"c++":  "cpp", "cpp": "cpp",
	"c#": "csharp", "csharp": "csharp",
}

// ParseIntent extracts search terms, quoted identifiers, and a language
// hint from free-text query input. Terms are weighted: quoted
// identifiers and longer words score higher than common short words.
func ParseIntent(query string) Intent {
	in := Intent{Weights: make(map[string]float64)}

	lower := strings.ToLower(query)
	for hint, lang := range languageHints {
		if containsWord(lower, hint) {
			in.LanguageHint = lang
			break
		}
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		if len(m) > 1 {
			in.QuotedTerms = append(in.QuotedTerms, m[1])
			in.Weights[strings.ToLower(m[1])] = 1.0
		}
	}

	seen := map[string]bool{}
	for _, word := range wordPattern.FindAllString(query, -1) {
		token := strings.ToLower(word)
		if isStopWord(token) || seen[token] {
			continue
		}
		seen[token] = true
		in.Terms = append(in.Terms, token)
		if _, exists := in.Weights[token]; !exists {
			in.Weights[token] = termWeight(token)
		}
	}

	return in
}

func termWeight(token string) float64 {
	switch {
	case len(token) >= 8:
		return 0.9
	case len(token) >= 5:
		return 0.7
	default:
		return 0.4
	}
}

func containsWord(haystack, word string) bool {
	for _, w := range strings.Fields(haystack) {
		if strings.Trim(w, ".,!?:;") == word {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"for": true, "on": true, "with": true, "at": true, "by": true, "from": true,
	"as": true, "and": true, "but": true, "or": true, "that": true, "this": true,
	"it": true, "i": true, "you": true, "me": true, "find": true, "search": true,
	"function": true, "pattern": true, "code": true, "please": true, "show": true,
	"give": true, "want": true, "need": true, "how": true, "can": true, "do": true,
}

func isStopWord(token string) bool {
	if len(token) <= 2 {
		return true
	}
	return stopWords[token]
}
