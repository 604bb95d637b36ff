package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// tokenPattern splits pattern text into indexable identifier-shaped tokens.
var tokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)

func tokenize(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}

// LexicalIndex is an in-memory tokenized inverted index over the proven
// Pattern collection: term -> set of pattern IDs containing it, plus the
// per-pattern term frequency needed for weighted scoring. Grounded on the
// teacher's KeywordHitCache (internal/retrieval/sparse.go), generalized
// from a TTL file-hit cache into a rebuildable in-process index — there
// is no filesystem to scan here, so the index is built directly from
// Store.All() rather than shelling out to a search tool.
type LexicalIndex struct {
	mu        sync.RWMutex
	postings  map[string]map[string]int // term -> patternID -> term frequency
	patterns  map[string]types.Pattern
	builtAt   time.Time
	staleness time.Duration
}

// NewLexicalIndex creates an index that rebuilds itself at most once per
// staleness window when Ensure is called.
func NewLexicalIndex(staleness time.Duration) *LexicalIndex {
	if staleness <= 0 {
		staleness = 30 * time.Second
	}
	return &LexicalIndex{
		postings:  make(map[string]map[string]int),
		patterns:  make(map[string]types.Pattern),
		staleness: staleness,
	}
}

// Ensure rebuilds the index from s if it has gone stale.
func (idx *LexicalIndex) Ensure(s *store.Store) error {
	idx.mu.RLock()
	fresh := time.Since(idx.builtAt) < idx.staleness && len(idx.patterns) > 0
	idx.mu.RUnlock()
	if fresh {
		return nil
	}
	return idx.Rebuild(s)
}

// Rebuild forces a full re-index from s, regardless of staleness.
func (idx *LexicalIndex) Rebuild(s *store.Store) error {
	patterns, err := s.All()
	if err != nil {
		return err
	}

	postings := make(map[string]map[string]int)
	byID := make(map[string]types.Pattern, len(patterns))
	for _, p := range patterns {
		byID[p.ID] = p
		doc := strings.Join([]string{p.Name, p.Description, p.Code, strings.Join(p.Tags, " ")}, " ")
		counts := map[string]int{}
		for _, tok := range tokenize(doc) {
			counts[tok]++
		}
		for tok, n := range counts {
			if postings[tok] == nil {
				postings[tok] = make(map[string]int)
			}
			postings[tok][p.ID] = n
		}
	}

	idx.mu.Lock()
	idx.postings = postings
	idx.patterns = byID
	idx.builtAt = time.Now()
	idx.mu.Unlock()
	return nil
}

// LexicalHit is a scored lexical match.
type LexicalHit struct {
	Pattern      types.Pattern
	Score        float64
	MatchedTerms []string
}

// prefixBoostWeight rewards a query term that is a prefix of (or is
// prefixed by) a candidate's Name or one of its Tags, on top of the
// plain token-overlap score (spec.md §4.3 "lexical: token overlap +
// prefix boost on name/tags").
const prefixBoostWeight = 0.3

// hasPrefixMatch reports whether term lines up with the start of p's
// Name or any Tag, in either direction (so "parse" matches a pattern
// named "parseJSON", and "parsejson" matches a tag "parse").
func hasPrefixMatch(term string, p types.Pattern) bool {
	name := strings.ToLower(p.Name)
	if strings.HasPrefix(name, term) || strings.HasPrefix(term, name) {
		return true
	}
	for _, tag := range p.Tags {
		t := strings.ToLower(tag)
		if strings.HasPrefix(t, term) || strings.HasPrefix(term, t) {
			return true
		}
	}
	return false
}

// Search scores every pattern containing at least one term in intent
// against a simple TF * term-weight sum, boosted when multiple distinct
// intent terms match the same pattern (mirrors the teacher's
// RankFiles "boost for multiple unique keywords") and again when a term
// prefixes the pattern's name or tags.
func (idx *LexicalIndex) Search(in Intent, limit int) []LexicalHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type acc struct {
		score float64
		terms map[string]bool
	}
	scores := make(map[string]*acc)

	for _, term := range in.Terms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		weight := in.Weights[term]
		if weight == 0 {
			weight = 0.4
		}
		for patternID, tf := range postings {
			a, ok := scores[patternID]
			if !ok {
				a = &acc{terms: make(map[string]bool)}
				scores[patternID] = a
			}
			a.score += weight * float64(tf)
			a.terms[term] = true
			if p, ok := idx.patterns[patternID]; ok && hasPrefixMatch(term, p) {
				a.score += weight * prefixBoostWeight
			}
		}
	}

	hits := make([]LexicalHit, 0, len(scores))
	for patternID, a := range scores {
		p, ok := idx.patterns[patternID]
		if !ok {
			continue
		}
		score := a.score
		if len(a.terms) > 1 {
			score *= 1.0 + float64(len(a.terms)-1)*0.2
		}
		terms := make([]string, 0, len(a.terms))
		for t := range a.terms {
			terms = append(terms, t)
		}
		hits = append(hits, LexicalHit{Pattern: p, Score: score, MatchedTerms: terms})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// HasTerm reports whether term appears verbatim in the index, i.e. a
// plain Search for it would find at least one posting.
func (idx *LexicalIndex) HasTerm(term string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.postings[term]
	return ok
}

// Vocabulary returns every indexed token plus every pattern Name token
// and Tag, lowercased, for smartSearch's spelling-correction pass
// (spec.md §4.3 "edit-distance over known tag/name vocabulary").
func (idx *LexicalIndex) Vocabulary() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool, len(idx.postings))
	for term := range idx.postings {
		seen[term] = true
	}
	for _, p := range idx.patterns {
		for _, tok := range tokenize(p.Name) {
			seen[tok] = true
		}
		for _, tag := range p.Tags {
			seen[strings.ToLower(tag)] = true
		}
	}

	vocab := make([]string, 0, len(seen))
	for term := range seen {
		vocab = append(vocab, term)
	}
	return vocab
}
