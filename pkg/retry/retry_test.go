package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "test", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversAfterFailures(t *testing.T) {
	calls := 0
	start := time.Now()
	got, err := Do(context.Background(), "test", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("boom")
		}
		return 42, nil
	}, 3, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	// Backoff must be 10ms then 20ms between the three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "must never exceed maxRetries invocations")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}, 5, time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
