package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseIntentExtractsTermsAndLanguage(t *testing.T) {
	in := ParseIntent(`find a "RetryPolicy" helper in python for exponential backoff`)
	require.Contains(t, in.QuotedTerms, "RetryPolicy")
	require.Equal(t, "python", in.LanguageHint)
	require.Contains(t, in.Terms, "exponential")
	require.Contains(t, in.Terms, "backoff")
	require.NotContains(t, in.Terms, "the")
}

func TestLexicalSearchRanksMultiTermMatchesHigher(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code: "func RetryWithBackoff() {}", Description: "retries with exponential backoff",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)
	_, err = s.Insert(types.Pattern{
		Name: "backoff-only", Language: types.LanguageGo,
		Code: "func Backoff() {}", Description: "backoff helper",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	idx := NewLexicalIndex(time.Minute)
	require.NoError(t, idx.Rebuild(s))

	hits := idx.Search(ParseIntent("retry backoff"), 10)
	require.NotEmpty(t, hits)
	require.Equal(t, "retry-with-backoff", hits[0].Pattern.Name)
}

func TestMinHashJaccardIdenticalText(t *testing.T) {
	sig1 := Signature("func Add(a, b int) int { return a + b }")
	sig2 := Signature("func Add(a, b int) int { return a + b }")
	require.Equal(t, 1.0, Jaccard(sig1, sig2))
}

func TestSearchLexicalOnlyWithoutEmbeddingEngine(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code: "func RetryWithBackoff() {}", Description: "retries with exponential backoff",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.8},
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	results, err := eng.Search(context.Background(), "retry backoff", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "retry-with-backoff", results[0].Pattern.Name)
}

func TestSearchFiltersByLanguageHint(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-go", Language: types.LanguageGo,
		Code: "func Retry() {}", Description: "retry helper",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)
	_, err = s.Insert(types.Pattern{
		Name: "retry-py", Language: types.LanguagePython,
		Code: "def retry(): pass", Description: "retry helper",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	results, err := eng.Search(context.Background(), "retry helper in python", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.Equal(t, types.LanguagePython, r.Pattern.Language)
	}
}

func TestSearchModeLexicalSkipsSemanticScore(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code: "func RetryWithBackoff() {}", Description: "retries with exponential backoff",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	results, err := eng.Search(context.Background(), "retry backoff", Options{Limit: 5, Mode: ModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Zero(t, results[0].SemanticScore)
	require.Equal(t, normalize(results[0].LexicalScore), results[0].BlendedScore)
}

func TestSearchModeSemanticWithoutEmbeddingEngineYieldsNoResults(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code: "func RetryWithBackoff() {}", Description: "retries with exponential backoff",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	results, err := eng.Search(context.Background(), "retry backoff", Options{Limit: 5, Mode: ModeSemantic})
	require.NoError(t, err)
	require.Empty(t, results, "semantic-only mode with no embedding engine has nothing to rank")
}

func TestLexicalSearchBoostsNamePrefixMatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "parseJSON", Language: types.LanguageGo,
		Code: "func ParseJSON() {}", Description: "parses a JSON document",
		Tags: []string{"parse"}, GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)
	_, err = s.Insert(types.Pattern{
		Name: "unrelated-formatter", Language: types.LanguageGo,
		Code: "func Format() {}", Description: "parse adjacent text for formatting, nothing fancy",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	idx := NewLexicalIndex(time.Minute)
	require.NoError(t, idx.Rebuild(s))

	hits := idx.Search(ParseIntent("parse"), 10)
	require.Len(t, hits, 2)
	require.Equal(t, "parseJSON", hits[0].Pattern.Name, "prefix match on name should outrank a plain description mention with an equal token score")
}

func TestSmartSearchCorrectsMisspelledTerm(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code: "func RetryWithBackoff() {}", Description: "retries an operation with exponential backoff",
		Tags: []string{"retry", "backoff"}, GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	result, err := eng.SmartSearch(context.Background(), "retyr backoff", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Corrections)
	require.Equal(t, "retyr", result.Corrections[0].Original)
	require.Equal(t, "retry", result.Corrections[0].Corrected)
	require.NotEmpty(t, result.Results)
	require.Equal(t, "retry-with-backoff", result.Results[0].Pattern.Name)
}

func TestSmartSearchFallsBackAcrossLanguages(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-go", Language: types.LanguageGo,
		Code: "func Retry() {}", Description: "retry helper", Tags: []string{"retry"},
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
	}, false)
	require.NoError(t, err)

	eng := New(s, nil)
	result, err := eng.SmartSearch(context.Background(), "retry helper in rust", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results, "a language-scoped miss should fall back to cross-language matches")
	require.Equal(t, "retry-go", result.Results[0].Pattern.Name)
}

func TestSmartSearchParsesConstraintsAndDomainIntents(t *testing.T) {
	s := openTestStore(t)
	eng := New(s, nil)
	result, err := eng.SmartSearch(context.Background(), "cache helper without deps", Options{Limit: 5})
	require.NoError(t, err)
	require.True(t, result.Intent.Constraints.NoDeps)
	require.NotEmpty(t, result.Intent.Intents)
	require.Equal(t, "cache", result.Intent.Intents[0].Name)
}
