package reflector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReflectConvergesWhenTargetReached(t *testing.T) {
	r := New()
	scores := []float64{0.4, 0.6, 0.9}
	call := 0
	outcome, err := r.Reflect(context.Background(), "v0", Options{
		Target:   0.85,
		MaxLoops: 3,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			s := scores[call]
			call++
			return s, nil, nil
		},
		Refine: func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
			return code + "+", nil
		},
	})
	require.NoError(t, err)
	require.True(t, outcome.Converged)
	require.Equal(t, 3, outcome.Iterations)
	require.Equal(t, "v0++", outcome.Code)
}

func TestReflectStopsOnStuckRefine(t *testing.T) {
	r := New()
	outcome, err := r.Reflect(context.Background(), "v0", Options{
		Target:   0.99,
		MaxLoops: 5,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			return 0.5, []string{"issue"}, nil
		},
		Refine: func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
			return code, nil // identical code every time
		},
	})
	require.NoError(t, err)
	require.False(t, outcome.Converged)
	require.Equal(t, 1, outcome.Iterations)
}

func TestReflectStopsOnRegression(t *testing.T) {
	r := New()
	scores := []float64{0.5, 0.7, 0.6}
	call := 0
	outcome, err := r.Reflect(context.Background(), "v0", Options{
		Target:   0.99,
		MaxLoops: 5,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			s := scores[call]
			call++
			return s, nil, nil
		},
		Refine: func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
			return code + "+", nil
		},
	})
	require.NoError(t, err)
	require.False(t, outcome.Converged)
	require.Equal(t, 3, outcome.Iterations)
	require.Equal(t, "v0+", outcome.Code) // best score (0.7) was at iteration 1
}

func TestReflectReturnsBestNotLast(t *testing.T) {
	r := New()
	scores := []float64{0.3, 0.8, 0.75, 0.6}
	call := 0
	outcome, err := r.Reflect(context.Background(), "v0", Options{
		Target:   0.99,
		MaxLoops: 3,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			s := scores[call]
			call++
			return s, nil, nil
		},
		Refine: func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
			return code + "+", nil
		},
	})
	require.NoError(t, err)
	require.False(t, outcome.Converged)
	require.Equal(t, "v0+", outcome.Code)
}

func TestReflectRequiresHooks(t *testing.T) {
	r := New()
	_, err := r.Reflect(context.Background(), "v0", Options{Target: 0.5})
	require.Error(t, err)
}

func TestReflectPropagatesEvaluateError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	_, err := r.Reflect(context.Background(), "v0", Options{
		Target: 0.5,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			return 0, nil, wantErr
		},
		Refine: func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
			return code, nil
		},
	})
	require.ErrorIs(t, err, wantErr)
}
