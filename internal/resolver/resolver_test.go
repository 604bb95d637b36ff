package resolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/search"
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

func defaultCfg() config.ResolverConfig {
	return config.ResolverConfig{TauPull: 0.85, TauEvolve: 0.55, MinCoherency: 0.0}
}

func TestResolveReturnsGenerateWhenLibraryEmpty(t *testing.T) {
	s := openTestStore(t)
	r := New(search.New(s, nil), defaultCfg())

	res, err := r.Resolve(context.Background(), Request{Description: "retry with backoff", Language: types.LanguageGo})
	require.NoError(t, err)
	require.Equal(t, DecisionGenerate, res.Decision)
	require.Equal(t, "library empty", res.Reasoning)
}

func TestResolvePullsStrongMatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguageGo,
		Code:             "func RetryWithBackoff() {}",
		Description:      "retries an operation with exponential backoff",
		Tags:             []string{"retry", "backoff"},
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.95},
		Reliability:    types.Reliability{UsageCount: 10, SuccessCount: 10},
	}, false)
	require.NoError(t, err)

	r := New(search.New(s, nil), defaultCfg())
	res, err := r.Resolve(context.Background(), Request{
		Description: "retry with backoff", Language: types.LanguageGo,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionPull, res.Decision)
	require.NotNil(t, res.Pattern)
	require.Equal(t, "retry-with-backoff", res.Pattern.Name)
	require.NotEmpty(t, res.Whisper)
}

func TestResolveGeneratesWhenNoGoodMatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "unrelated-thing", Language: types.LanguageGo,
		Code: "func Unrelated() {}", Description: "completely unrelated utility",
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.2},
	}, false)
	require.NoError(t, err)

	r := New(search.New(s, nil), defaultCfg())
	res, err := r.Resolve(context.Background(), Request{
		Description: "parse a obscure binary protocol nobody has named", Language: types.LanguageGo,
	})
	require.NoError(t, err)
	require.Equal(t, DecisionGenerate, res.Decision)
}

func TestResolveRequiresLanguageMatchForPull(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(types.Pattern{
		Name: "retry-with-backoff", Language: types.LanguagePython,
		Code:             "def retry_with_backoff(): pass",
		Description:      "retries an operation with exponential backoff",
		Tags:             []string{"retry", "backoff"},
		GenerationMethod: types.GenerationSeed, CovenantSealed: true,
		CoherencyScore: types.CoherencyScore{Total: 0.95},
		Reliability:    types.Reliability{UsageCount: 10, SuccessCount: 10},
	}, false)
	require.NoError(t, err)

	r := New(search.New(s, nil), defaultCfg())
	res, err := r.Resolve(context.Background(), Request{
		Description: "retry with backoff", Language: types.LanguageGo,
	})
	require.NoError(t, err)
	require.NotEqual(t, DecisionPull, res.Decision)
}
