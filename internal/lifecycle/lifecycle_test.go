package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

type fakeEvaluator struct {
	score float64
}

func (f fakeEvaluator) Evaluate(ctx context.Context, code, language string) (types.CoherencyScore, error) {
	return types.CoherencyScore{Total: f.score, Breakdown: types.CoherencyBreakdown{
		Correctness: f.score, Simplicity: f.score, Relevance: f.score,
		Clarity: f.score, Nesting: f.score, Security: f.score,
	}}, nil
}

func fakeRefine(ctx context.Context, code string, issues []string, iteration int) (string, error) {
	return code + "\n// improved\n", nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCycleHealsLowCoherencyPattern(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "rough-pattern", Language: types.LanguageGo,
		Code: "func Rough() {}\n", Description: "needs work",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.4},
	}, false)
	require.NoError(t, err)

	eng := New(s, fakeRefine, fakeEvaluator{score: 0.9}, config.LifecycleConfig{MaxHealsPerRun: 20})
	report, err := eng.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.NotEmpty(t, report.Improve.Actions)

	p, err := s.GetByName("rough-pattern", types.LanguageGo)
	require.NoError(t, err)
	require.GreaterOrEqual(t, p.CoherencyScore.Total, 0.8)
}

func TestRunCycleRejectsConcurrentRun(t *testing.T) {
	s := openTestStore(t)
	eng := New(s, fakeRefine, fakeEvaluator{score: 0.9}, config.LifecycleConfig{})

	eng.mu.Lock()
	eng.running = true
	eng.mu.Unlock()

	_, err := eng.RunCycle(context.Background(), "test")
	require.ErrorIs(t, err, ErrBusy)
}

func TestOnFeedbackTriggersEvolveAtThreshold(t *testing.T) {
	s := openTestStore(t)
	eng := New(s, fakeRefine, fakeEvaluator{score: 0.9}, config.LifecycleConfig{FeedbackTrigger: 2})

	require.NoError(t, eng.OnFeedback(context.Background()))
	require.Empty(t, eng.History())

	require.NoError(t, eng.OnFeedback(context.Background()))
	require.Len(t, eng.History(), 1)
}

func TestCleanStubsRemovesTinyPatterns(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "stub", Language: types.LanguageGo, Code: "func S() {}",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.9},
	}, false)
	require.NoError(t, err)
	_, err = s.Insert(types.Pattern{
		Name: "real", Language: types.LanguageGo,
		Code:             "func Real() {\n\tx := 1\n\ty := 2\n\treturn x + y\n}",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.9},
	}, false)
	require.NoError(t, err)

	eng := New(s, fakeRefine, fakeEvaluator{score: 0.9}, config.LifecycleConfig{AutoClean: true})
	report, err := eng.RunCycle(context.Background(), "test", improveOnly)
	require.NoError(t, err)
	require.Contains(t, report.Improve.Actions[len(report.Improve.Actions)-1], "cleaned")

	_, err = s.GetByName("real", types.LanguageGo)
	require.NoError(t, err)
	_, err = s.GetByName("stub", types.LanguageGo)
	require.Error(t, err)
}
