package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "oracle.db")
	s, err := Open(dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePattern(name string) types.Pattern {
	return types.Pattern{
		Name:             name,
		Code:             "func Add(a, b int) int { return a + b }",
		Language:         types.LanguageGo,
		Description:      "adds two integers",
		PatternType:      types.PatternTypeUtility,
		Complexity:       types.ComplexityLow,
		GenerationMethod: types.GenerationSeed,
		CovenantSealed:   true,
		CoherencyScore:   types.CoherencyScore{Total: 0.7},
	}
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)

	res, err := s.Insert(samplePattern("add-two-ints"), false)
	require.NoError(t, err)
	require.False(t, res.Merged)
	require.NotEmpty(t, res.Pattern.ID)

	got, err := s.Get(res.Pattern.ID)
	require.NoError(t, err)
	require.Equal(t, "add-two-ints", got.Name)
	require.Equal(t, types.LanguageGo, got.Language)
}

func TestInsertMergesOnNameLanguageConflict(t *testing.T) {
	s := openTestStore(t)

	first := samplePattern("add-two-ints")
	first.CoherencyScore.Total = 0.5
	r1, err := s.Insert(first, false)
	require.NoError(t, err)

	second := samplePattern("Add-Two-Ints") // same name, different case
	second.CoherencyScore.Total = 0.9
	second.Code = "func Add(a, b int) int { return a + b } // v2"
	second.Tags = []string{"math"}
	r2, err := s.Insert(second, false)
	require.NoError(t, err)
	require.True(t, r2.Merged)
	require.Equal(t, r1.Pattern.ID, r2.Pattern.ID)

	merged, err := s.Get(r1.Pattern.ID)
	require.NoError(t, err)
	require.Equal(t, second.Code, merged.Code, "higher-coherency side's code should win")
	require.Contains(t, merged.Tags, "math")
}

func TestInsertStrictRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(samplePattern("add-two-ints"), false)
	require.NoError(t, err)

	_, err = s.Insert(samplePattern("add-two-ints"), true)
	require.ErrorIs(t, err, types.ErrDuplicate)
}

func TestPromoteMovesCandidateToPattern(t *testing.T) {
	s := openTestStore(t)

	c, err := s.InsertCandidate(types.Candidate(samplePattern("candidate-fn")))
	require.NoError(t, err)

	p, err := s.Promote(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, p.ID)

	_, err = s.GetCandidate(c.ID)
	require.ErrorIs(t, err, types.ErrNotFound, "promoted candidate must no longer be a candidate")

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, "candidate-fn", got.Name)
}

func TestDeduplicateMergesNearDuplicates(t *testing.T) {
	s := openTestStore(t)

	a := samplePattern("sum-ints-a")
	a.MinHashSignature = []uint64{1, 2, 3, 4}
	a.CoherencyScore.Total = 0.6
	ra, err := s.Insert(a, false)
	require.NoError(t, err)

	b := samplePattern("sum-ints-b")
	b.MinHashSignature = []uint64{1, 2, 3, 9} // 3/4 bands match => 0.75, below default threshold
	b.CoherencyScore.Total = 0.8
	rb, err := s.Insert(b, false)
	require.NoError(t, err)
	require.NotEqual(t, ra.Pattern.ID, rb.Pattern.ID)

	groups, _, err := s.Deduplicate()
	require.NoError(t, err)
	require.Empty(t, groups, "below-threshold similarity should not merge")

	c := samplePattern("sum-ints-c")
	c.MinHashSignature = []uint64{1, 2, 3, 9} // identical to b => Jaccard 1.0
	c.CoherencyScore.Total = 0.4
	_, err = s.Insert(c, false)
	require.NoError(t, err)

	groups, _, err = s.Deduplicate()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, rb.Pattern.ID, groups[0].Survivor.ID, "highest-coherency pattern should survive")
}

func TestDeduplicateLinksCrossLanguageVariantsInsteadOfMerging(t *testing.T) {
	s := openTestStore(t)

	goPattern := samplePattern("sum-ints-go")
	goPattern.MinHashSignature = []uint64{1, 2, 3, 4}
	goPattern.CoherencyScore.Total = 0.9
	rGo, err := s.Insert(goPattern, false)
	require.NoError(t, err)

	pyPattern := samplePattern("sum-ints-py")
	pyPattern.Language = types.LanguagePython
	pyPattern.MinHashSignature = []uint64{1, 2, 3, 4} // identical signature, different language
	pyPattern.CoherencyScore.Total = 0.5
	rPy, err := s.Insert(pyPattern, false)
	require.NoError(t, err)

	groups, links, err := s.Deduplicate()
	require.NoError(t, err)
	require.Empty(t, groups, "cross-language near-duplicates must not be merged")
	require.Len(t, links, 1)
	require.Equal(t, rGo.Pattern.ID, links[0].Canonical.ID, "higher-coherency pattern is canonical")
	require.Equal(t, rPy.Pattern.ID, links[0].Variant.ID)

	variant, err := s.Get(rPy.Pattern.ID)
	require.NoError(t, err)
	require.Equal(t, rGo.Pattern.ID, variant.ParentPattern)
	require.Equal(t, types.GenerationVariant, variant.GenerationMethod)

	canonical, err := s.Get(rGo.Pattern.ID)
	require.NoError(t, err)
	require.Equal(t, types.GenerationSeed, canonical.GenerationMethod, "canonical side is left untouched")
}

func TestVoteAccumulatesWeightedScore(t *testing.T) {
	s := openTestStore(t)
	res, err := s.Insert(samplePattern("add-two-ints"), false)
	require.NoError(t, err)

	votes, err := s.Vote(res.Pattern.ID, "voter-1", DirectionUp)
	require.NoError(t, err)
	require.Equal(t, 1, votes.Upvotes)
	require.Greater(t, votes.Score, 0.0)

	// Changing the same voter's vote should not double-count.
	votes, err = s.Vote(res.Pattern.ID, "voter-1", DirectionDown)
	require.NoError(t, err)
	require.Equal(t, 0, votes.Upvotes)
	require.Equal(t, 1, votes.Downvotes)
	require.Less(t, votes.Score, 0.0)
}

func TestLifecycleCounters(t *testing.T) {
	s := openTestStore(t)

	c, err := s.IncrementCounter(CounterFeedbacks)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Feedbacks)

	c, err = s.IncrementCounter(CounterFeedbacks)
	require.NoError(t, err)
	require.EqualValues(t, 2, c.Feedbacks)

	require.NoError(t, s.ResetCounters(CounterFeedbacks))
	c, err = s.Counters()
	require.NoError(t, err)
	require.EqualValues(t, 0, c.Feedbacks)
}

func TestIdempotencyLogPreventsReplay(t *testing.T) {
	s := openTestStore(t)

	processed, err := s.AlreadyProcessed("evt-1")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, s.MarkProcessed("evt-1", "submit"))

	processed, err = s.AlreadyProcessed("evt-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestLineageCycleRejected(t *testing.T) {
	s := openTestStore(t)

	root, err := s.Insert(samplePattern("root-fn"), false)
	require.NoError(t, err)

	child := samplePattern("child-fn")
	child.ParentPattern = root.Pattern.ID
	childRes, err := s.Insert(child, false)
	require.NoError(t, err)

	// Attempting to make root a child of its own descendant must fail.
	require.True(t, s.Lineage().WouldCycle(root.Pattern.ID, childRes.Pattern.ID))
}
