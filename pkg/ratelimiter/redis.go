package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a cluster-shared limiter backed by Redis sorted sets, for
// deployments running more than one worker process against a single
// queue. The token-bucket capacity check and the one-minute window check
// are each evaluated with a small Lua-free round trip: ZREMRANGEBYSCORE to
// expire old entries, ZCARD to count, ZADD to admit.
type Redis struct {
	client  *redis.Client
	configs map[string]Config
}

// NewRedis wraps an existing client. A nil configs map uses DefaultConfigs.
func NewRedis(client *redis.Client, configs map[string]Config) *Redis {
	if configs == nil {
		configs = DefaultConfigs()
	}
	return &Redis{client: client, configs: configs}
}

func (r *Redis) configFor(source string) Config {
	if c, ok := r.configs[source]; ok {
		return c
	}
	return Config{RequestsPerSecond: 2, Burst: 5, PerMinute: 120}
}

func windowKey(source string) string {
	return fmt.Sprintf("provenance:ratelimit:%s:window", source)
}

// TryAcquire implements Limiter using the minute-window sorted set as the
// source of truth; the token-bucket burst limit is approximated by
// counting entries in a short trailing slice of that same set, avoiding a
// second round trip for the common case.
func (r *Redis) TryAcquire(source string) (bool, time.Duration) {
	ctx := context.Background()
	cfg := r.configFor(source)
	now := time.Now()
	key := windowKey(source)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-time.Minute).UnixNano()))
	minuteCount := pipe.ZCard(ctx, key)
	burstCutoff := now.Add(-time.Duration(float64(cfg.Burst) / cfg.RequestsPerSecond * float64(time.Second)))
	burstCount := pipe.ZCount(ctx, key, fmt.Sprintf("%d", burstCutoff.UnixNano()), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: connectivity problems with the limiter backend must
		// not stall the pipeline; the per-source rate is best-effort.
		return true, 0
	}

	if minuteCount.Val() >= int64(cfg.PerMinute) {
		return false, time.Minute / time.Duration(max64(cfg.PerMinute, 1))
	}
	if burstCount.Val() >= int64(cfg.Burst) {
		return false, time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	_ = r.client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err()
	_ = r.client.Expire(ctx, key, 2*time.Minute).Err()
	return true, 0
}

func max64(v int, floor int64) int64 {
	if int64(v) < floor {
		return floor
	}
	return int64(v)
}

// Acquire implements Limiter.
func (r *Redis) Acquire(ctx context.Context, source string) error {
	for {
		admitted, waitHint := r.TryAcquire(source)
		if admitted {
			return nil
		}
		if waitHint <= 0 {
			waitHint = 10 * time.Millisecond
		}
		timer := time.NewTimer(waitHint)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status implements Limiter.
func (r *Redis) Status(source string) Status {
	ctx := context.Background()
	cfg := r.configFor(source)
	key := windowKey(source)

	now := time.Now()
	_ = r.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-time.Minute).UnixNano())).Err()
	count, _ := r.client.ZCard(ctx, key).Result()

	return Status{
		Source:          source,
		TokensAvailable: float64(cfg.Burst) - float64(count),
		BucketCapacity:  cfg.Burst,
		RequestsThisMin: int(count),
		PerMinuteLimit:  cfg.PerMinute,
	}
}
