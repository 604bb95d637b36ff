package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// domainVocabulary is the fixed set of domain tags the intent parser
// matches free-text query terms against (spec.md §4.3 "a fixed
// vocabulary of domain tags plus lightweight keyword rules").
var domainVocabulary = []string{
	"validation", "algorithm", "parser", "cache", "concurrency", "retry",
	"queue", "logging", "serialization", "encryption", "database", "testing",
	"utility", "design-pattern", "data-structure", "authentication", "http",
	"error-handling", "rate-limiting", "scheduling", "compression", "middleware",
}

// constraintRules maps a keyword phrase found in the raw query to the
// Constraints field it sets (spec.md §4.3: `"without deps" ->
// constraints.no-deps=true`).
var constraintRules = []struct {
	phrase string
	apply  func(*Constraints)
}{
	{"without deps", func(c *Constraints) { c.NoDeps = true }},
	{"without dependencies", func(c *Constraints) { c.NoDeps = true }},
	{"no deps", func(c *Constraints) { c.NoDeps = true }},
	{"dependency-free", func(c *Constraints) { c.NoDeps = true }},
	{"pure function", func(c *Constraints) { c.Pure = true }},
	{"pure", func(c *Constraints) { c.Pure = true }},
	{"async", func(c *Constraints) { c.Async = true }},
	{"asynchronous", func(c *Constraints) { c.Async = true }},
	{"tested", func(c *Constraints) { c.Tested = true }},
	{"with tests", func(c *Constraints) { c.Tested = true }},
}

// Constraints narrows smartSearch results by structural traits a plain
// term can't express (spec.md §4.3 intent parser's `{ pure, async,
// tested, ... }` bag).
type Constraints struct {
	Pure   bool
	Async  bool
	Tested bool
	NoDeps bool
}

// NamedIntent is one confidence-scored domain-tag match against the
// query (spec.md §4.3 `intents: [{name, confidence}]`).
type NamedIntent struct {
	Name       string
	Confidence float64
}

// SmartIntent is the structured form smartSearch derives from free
// text, beyond the flat term/weight bag ParseIntent produces.
type SmartIntent struct {
	Intents     []NamedIntent
	Language    string
	Constraints Constraints
}

// Correction is one spelling fix smartSearch applied to a query term
// before searching.
type Correction struct {
	Original  string
	Corrected string
}

// SmartSearchResult is smartSearch's full response shape (spec.md §4.3:
// `smartSearch(term, opts) -> { corrections, intent, results,
// suggestions }`).
type SmartSearchResult struct {
	Corrections []Correction
	Intent      SmartIntent
	Results     []Result
	Suggestions []string
}

// SmartSearch parses a structured intent from query, corrects likely
// misspellings against the indexed name/tag vocabulary, searches with
// the corrected terms, and falls back across languages when a
// language-scoped search comes back empty.
func (e *Engine) SmartSearch(ctx context.Context, query string, opts Options) (SmartSearchResult, error) {
	if err := e.lexical.Ensure(e.store); err != nil {
		return SmartSearchResult{}, fmt.Errorf("search: build lexical index: %w", err)
	}

	in := ParseIntent(query)
	vocab := e.lexical.Vocabulary()

	corrections, correctedQuery := correctTerms(&in, query, e.lexical, vocab)
	smartIntent := parseSmartIntent(query, in)

	results, err := e.searchIntent(ctx, correctedQuery, in, opts)
	if err != nil {
		return SmartSearchResult{}, err
	}

	if len(results) == 0 && (opts.Language != "" || in.LanguageHint != "") {
		widened := in
		widened.LanguageHint = ""
		widenedOpts := opts
		widenedOpts.Language = ""
		results, err = e.searchIntent(ctx, correctedQuery, widened, widenedOpts)
		if err != nil {
			return SmartSearchResult{}, err
		}
	}

	var suggestions []string
	if len(results) == 0 {
		suggestions = suggestionsFor(in, vocab, 5)
	}

	return SmartSearchResult{
		Corrections: corrections,
		Intent:      smartIntent,
		Results:     results,
		Suggestions: suggestions,
	}, nil
}

// correctTerms replaces any intent term missing from the index with its
// nearest vocabulary match (by edit distance), when one is close enough
// to be a likely misspelling rather than an unrelated word. It returns
// the corrections applied and a copy of query with the same substring
// replacements, for re-embedding in the semantic half of the search.
func correctTerms(in *Intent, query string, idx *LexicalIndex, vocab []string) ([]Correction, string) {
	var corrections []Correction
	correctedQuery := query

	for i, term := range in.Terms {
		if idx.HasTerm(term) {
			continue
		}
		best, dist := nearestVocabTerm(term, vocab)
		if best == "" || best == term || dist > maxEditDistance(term) {
			continue
		}
		corrections = append(corrections, Correction{Original: term, Corrected: best})
		in.Terms[i] = best
		if w, ok := in.Weights[term]; ok {
			in.Weights[best] = w
			delete(in.Weights, term)
		}
		correctedQuery = replaceWord(correctedQuery, term, best)
	}

	return corrections, correctedQuery
}

// parseSmartIntent builds the structured SmartIntent from the raw query
// (for phrase-based constraint rules) and its already-tokenized Intent
// (for domain-tag matching).
func parseSmartIntent(query string, in Intent) SmartIntent {
	lower := strings.ToLower(query)

	var constraints Constraints
	for _, rule := range constraintRules {
		if strings.Contains(lower, rule.phrase) {
			rule.apply(&constraints)
		}
	}

	seen := make(map[string]bool, len(domainVocabulary))
	var intents []NamedIntent
	for _, term := range in.Terms {
		for _, tag := range domainVocabulary {
			if seen[tag] {
				continue
			}
			switch {
			case term == tag:
				intents = append(intents, NamedIntent{Name: tag, Confidence: 1.0})
				seen[tag] = true
			case strings.Contains(tag, term) || strings.Contains(term, tag):
				intents = append(intents, NamedIntent{Name: tag, Confidence: 0.75})
				seen[tag] = true
			default:
				if dist := levenshtein(term, tag); dist > 0 && dist <= maxEditDistance(tag) {
					conf := 1.0 - float64(dist)/float64(len(tag))
					if conf > 0 {
						intents = append(intents, NamedIntent{Name: tag, Confidence: conf})
						seen[tag] = true
					}
				}
			}
		}
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].Confidence > intents[j].Confidence })

	return SmartIntent{Intents: intents, Language: in.LanguageHint, Constraints: constraints}
}

// suggestionsFor offers alternative vocabulary terms when a search
// returns nothing, using sahilm/fuzzy's subsequence ranking to surface
// the closest known names/tags to what the caller typed.
func suggestionsFor(in Intent, vocab []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, term := range in.Terms {
		matches := fuzzy.Find(term, vocab)
		for _, m := range matches {
			if m.Str == term || seen[m.Str] {
				continue
			}
			seen[m.Str] = true
			out = append(out, m.Str)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// maxEditDistance bounds how many edits still count as a plausible
// misspelling rather than an unrelated word, scaled to word length.
func maxEditDistance(word string) int {
	switch {
	case len(word) >= 8:
		return 3
	case len(word) >= 5:
		return 2
	default:
		return 1
	}
}

// nearestVocabTerm finds the vocabulary entry closest to term by plain
// Levenshtein edit distance. sahilm/fuzzy's subsequence matching (used
// for suggestionsFor) misses transposition/substitution-style typos
// that a true edit distance catches, so correction uses a direct DP
// instead; see DESIGN.md.
func nearestVocabTerm(term string, vocab []string) (string, int) {
	best := ""
	bestDist := -1
	for _, v := range vocab {
		if v == term {
			return v, 0
		}
		d := levenshtein(term, v)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = v
		}
	}
	return best, bestDist
}

// levenshtein computes the standard single-character-edit distance
// between two strings via dynamic programming over two rolling rows.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// replaceWord substitutes whole-word occurrences of from with to in
// text, case-insensitively, leaving surrounding punctuation untouched.
func replaceWord(text, from, to string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllString(text, to)
}
