package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireStopsAtBudget(t *testing.T) {
	l := New("test", 0, 2, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.ErrorIs(t, l.Acquire(ctx), ErrBudgetExhausted)
	assert.Equal(t, 2, l.GetStats().Used)
}

func TestBudgetResetsAfterADay(t *testing.T) {
	l := New("test", 0, 1, nil)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.resetTime = now.Add(time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.ErrorIs(t, l.Acquire(ctx), ErrBudgetExhausted)

	now = now.Add(2 * time.Hour)
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 1, l.GetStats().Used)
}

func TestUnlimitedBudget(t *testing.T) {
	l := New("test", 0, 0, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	l := New("test", 1, 0, nil)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx))
}

func TestCacheHitRate(t *testing.T) {
	l := New("test", 0, 0, nil)
	require.NoError(t, l.Acquire(context.Background()))
	l.RecordCacheHit()
	l.RecordCacheHit()
	l.RecordCacheHit()

	s := l.GetStats()
	assert.Equal(t, 3, s.CacheHits)
	assert.InDelta(t, 75.0, s.CacheHitRate, 0.01)
}
