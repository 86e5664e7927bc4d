package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachVisitsEveryIndex(t *testing.T) {
	const items = 257
	var seen [items]atomic.Int32

	err := ForEach(context.Background(), items, func(_ context.Context, i int) error {
		seen[i].Add(1)
		return nil
	})
	require.NoError(t, err)

	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "index %d", i)
	}
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	err := ForEach(context.Background(), 1000, func(ctx context.Context, i int) error {
		calls.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.LessOrEqual(t, calls.Load(), int32(1000))
}

func TestForEachCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := ForEach(ctx, 10, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestForEachCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := ForEach(ctx, 10000, func(_ context.Context, i int) error {
		if i == 5 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestForEachZeroItems(t *testing.T) {
	called := false
	err := ForEach(context.Background(), 0, func(context.Context, int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestForEachSucceedsAfterWait(t *testing.T) {
	// Successive runs on the same caller context must not report the
	// internal group cancellation.
	ctx := context.Background()
	for run := 0; run < 3; run++ {
		require.NoError(t, ForEach(ctx, 4, func(context.Context, int) error { return nil }))
	}
}

func TestParallelize(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		threshold int
	}{
		{"zero", 0, -1},
		{"one", 1, -1},
		{"uneven", 1001, -1},
		{"below threshold", 50, 100},
		{"above threshold", 500, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			counts := make([]int, tt.items)
			visit := func(start, end int) {
				mu.Lock()
				defer mu.Unlock()
				for i := start; i < end; i++ {
					counts[i]++
				}
			}

			if tt.threshold < 0 {
				Parallelize(tt.items, visit)
			} else {
				ParallelizeWithThreshold(tt.items, tt.threshold, visit)
			}

			for i, c := range counts {
				assert.Equal(t, 1, c, "index %d", i)
			}
		})
	}
}
