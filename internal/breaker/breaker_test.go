package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)
	wantErr := errors.New("fail")
	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), "op", func(ctx context.Context) error { return wantErr })
		require.ErrorIs(t, err, wantErr)
	}
	open, failures := b.Status("op")
	require.True(t, open)
	require.Equal(t, 3, failures)

	err := b.Call(context.Background(), "op", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerClosesOnSuccessAfterCooldown(t *testing.T) {
	b := New(2, 10*time.Millisecond)
	b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("fail") })
	b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("fail") })

	open, _ := b.Status("op")
	require.True(t, open)

	time.Sleep(15 * time.Millisecond)

	err := b.Call(context.Background(), "op", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	open, failures := b.Status("op")
	require.False(t, open)
	require.Equal(t, 0, failures)
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New(2, 10*time.Millisecond)
	b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("fail") })
	b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("fail") })
	time.Sleep(15 * time.Millisecond)

	err := b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("still failing") })
	require.Error(t, err)

	open, _ := b.Status("op")
	require.True(t, open)
}

func TestBreakerIndependentPerName(t *testing.T) {
	b := New(1, time.Minute)
	b.Call(context.Background(), "a", func(ctx context.Context) error { return errors.New("fail") })

	openA, _ := b.Status("a")
	openB, _ := b.Status("b")
	require.True(t, openA)
	require.False(t, openB)
}

func TestResetClearsBreaker(t *testing.T) {
	b := New(1, time.Minute)
	b.Call(context.Background(), "op", func(ctx context.Context) error { return errors.New("fail") })
	open, _ := b.Status("op")
	require.True(t, open)

	b.Reset("op")
	open, failures := b.Status("op")
	require.False(t, open)
	require.Equal(t, 0, failures)
}
