package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalTryAcquire_RespectsBurst(t *testing.T) {
	l := NewLocal(map[string]Config{
		"license": {RequestsPerSecond: 0.5, Burst: 2, PerMinute: 30},
	})

	admitted1, _ := l.TryAcquire("license")
	admitted2, _ := l.TryAcquire("license")
	admitted3, waitHint := l.TryAcquire("license")

	require.True(t, admitted1)
	require.True(t, admitted2)
	require.False(t, admitted3)
	require.Greater(t, waitHint, time.Duration(0))
}

func TestLocalTryAcquire_RespectsPerMinute(t *testing.T) {
	l := NewLocal(map[string]Config{
		"document": {RequestsPerSecond: 1000, Burst: 1000, PerMinute: 3},
	})

	for i := 0; i < 3; i++ {
		admitted, _ := l.TryAcquire("document")
		require.True(t, admitted, "admission %d should succeed", i)
	}
	admitted, waitHint := l.TryAcquire("document")
	require.False(t, admitted)
	require.GreaterOrEqual(t, waitHint, time.Duration(0))
}

func TestLocalUnconfiguredSourceUsesFallback(t *testing.T) {
	l := NewLocal(map[string]Config{})
	st := l.Status("unknown-source")
	require.Equal(t, 5, st.BucketCapacity)
	require.Equal(t, 120, st.PerMinuteLimit)
}

func TestLocalAcquireBlocksUntilAdmitted(t *testing.T) {
	l := NewLocal(map[string]Config{
		"enrichment": {RequestsPerSecond: 50, Burst: 1, PerMinute: 1000},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, "enrichment"))
	require.NoError(t, l.Acquire(ctx, "enrichment"))
}

func TestLocalAcquireRespectsContextCancellation(t *testing.T) {
	l := NewLocal(map[string]Config{
		"license": {RequestsPerSecond: 0.1, Burst: 1, PerMinute: 30},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, "license"))
	err := l.Acquire(ctx, "license")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestRedisLimiter(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, map[string]Config{
		"identifier": {RequestsPerSecond: 10, Burst: 2, PerMinute: 3},
	})
}

func TestRedisTryAcquire_RespectsBurst(t *testing.T) {
	r := newTestRedisLimiter(t)

	admitted1, _ := r.TryAcquire("identifier")
	admitted2, _ := r.TryAcquire("identifier")
	admitted3, _ := r.TryAcquire("identifier")

	require.True(t, admitted1)
	require.True(t, admitted2)
	require.False(t, admitted3)
}

func TestRedisStatusReflectsUsage(t *testing.T) {
	r := newTestRedisLimiter(t)

	_, _ = r.TryAcquire("identifier")
	st := r.Status("identifier")
	require.Equal(t, 1, st.RequestsThisMin)
	require.Equal(t, 2, st.BucketCapacity)
}
