package main

import (
	"fmt"

	"github.com/cuemby/provenance/pkg/connector"
	"github.com/cuemby/provenance/pkg/idempotency"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/orchestrator"
	"github.com/cuemby/provenance/pkg/queue"
	"github.com/cuemby/provenance/pkg/ratelimiter"
	"github.com/cuemby/provenance/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// engine bundles every collaborator a CLI invocation or the serve
// command needs, wired from the resolved config.
type engine struct {
	store        jobstore.Store
	queue        queue.Queue
	limiter      ratelimiter.Limiter
	retry        *retry.Controller
	registry     *connector.Registry
	orchestrator *orchestrator.Orchestrator
}

func buildEngine() (*engine, error) {
	store, err := jobstore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open job state store: %w", err)
	}

	q, err := buildQueue()
	if err != nil {
		store.Close()
		return nil, err
	}

	limiter, err := buildLimiter()
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := connector.NewRegistry()
	connector.RegisterDefaults(registry)

	retryCfg := retry.Config{
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		MaxRetries: cfg.Retry.MaxRetries,
	}
	retryCtl := retry.NewController(retryCfg)

	idem := idempotency.NewChecker(idempotency.NewBoltAdapter(store), cfg.IdempotencyTTL)
	orch := orchestrator.New(store, q, idem)

	return &engine{
		store:        store,
		queue:        q,
		limiter:      limiter,
		retry:        retryCtl,
		registry:     registry,
		orchestrator: orch,
	}, nil
}

func buildQueue() (queue.Queue, error) {
	switch cfg.QueueBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return queue.NewRedis(client, cfg.QueueVisibilityTimeout), nil
	case "local", "":
		return queue.NewLocal(cfg.QueueVisibilityTimeout), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

func buildLimiter() (ratelimiter.Limiter, error) {
	configs := ratelimiter.DefaultConfigs()
	for source, rl := range cfg.RateLimits {
		configs[source] = ratelimiter.Config{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			PerMinute:         rl.PerMinute,
		}
	}

	switch cfg.RateLimiterBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return ratelimiter.NewRedis(client, configs), nil
	case "local", "":
		return ratelimiter.NewLocal(configs), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter backend %q", cfg.RateLimiterBackend)
	}
}

func (e *engine) Close() {
	e.store.Close()
}
