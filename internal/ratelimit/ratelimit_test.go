package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		wantRPM float64
		wantErr bool
	}{
		{"30/min", 30, false},
		{"2/sec", 120, false},
		{"120/hour", 2, false},
		{" 10 / min ", 10, false},
		{"0/min", 0, true},
		{"-5/min", 0, true},
		{"abc/min", 0, true},
		{"10/fortnight", 0, true},
		{"10", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantRPM, got, 1e-9)
		})
	}
}

func TestNewRejectsNonPositiveRate(t *testing.T) {
	_, err := New(0, 1)
	assert.Error(t, err)
	_, err = New(-10, 1)
	assert.Error(t, err)
}

func TestTryAcquireAdmitsAtMostBurst(t *testing.T) {
	// 1/min refills far slower than this test runs, so only the burst
	// capacity is admitted from a cold start.
	l, err := New(1, 3)
	require.NoError(t, err)

	admitted := 0
	for i := 0; i < 10; i++ {
		if l.TryAcquire() {
			admitted++
		}
	}
	assert.Equal(t, 3, admitted)
}

func TestAcquireImmediateWhenTokenAvailable(t *testing.T) {
	l, err := New(60, 1)
	require.NoError(t, err)

	var slept time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		return nil
	}

	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, time.Duration(0), slept)
}

func TestAcquireSleepsForDeficit(t *testing.T) {
	// 60/min = 1 token/sec, burst 1. Second acquire should wait ~1s.
	l, err := New(60, 1)
	require.NoError(t, err)

	var waits []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	require.Len(t, waits, 1)
	assert.InDelta(t, float64(time.Second), float64(waits[0]), float64(100*time.Millisecond))
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l, err := New(1, 1)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJitterBounded(t *testing.T) {
	l, err := New(6000, 1)
	require.NoError(t, err)
	l.WithJitter(50 * time.Millisecond)

	var waits []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	for _, w := range waits {
		// deficit wait at 100/sec is at most 10ms, jitter adds at most 50ms
		assert.LessOrEqual(t, w, 70*time.Millisecond)
	}
}

func TestRefillOverTime(t *testing.T) {
	l, err := New(6000, 1) // 100 tokens/sec
	require.NoError(t, err)
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())

	time.Sleep(30 * time.Millisecond) // ~3 tokens, capped at capacity 1
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}
