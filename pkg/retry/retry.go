// Package retry implements error classification, exponential backoff
// with jitter, and a per-source circuit breaker that trips on sustained
// failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// Classification is the outcome of classifying a connector error.
type Classification int

const (
	// ClassificationRetryable errors (timeouts, 5xx, connection resets)
	// should be retried with backoff.
	ClassificationRetryable Classification = iota
	// ClassificationNonRetryable errors (4xx other than 429, malformed
	// request) should fail the task immediately.
	ClassificationNonRetryable
	// ClassificationRobotDetected means the source's anti-automation
	// defenses fired; the task fails but is flagged distinctly so the
	// report can surface it as evidence gap rather than a provider defect.
	ClassificationRobotDetected
)

// ErrRobotDetected is returned by a connector (wrapped with source
// context) when it detects it has been blocked by bot mitigation.
var ErrRobotDetected = errors.New("retry: robot detection triggered")

// ErrNonRetryable marks an error as terminal for retry purposes; Classify
// also treats context.Canceled as non-retryable. Every other error is
// retryable.
var ErrNonRetryable = errors.New("retry: non-retryable error")

// Classify inspects err and returns how the controller should react.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, ErrRobotDetected):
		return ClassificationRobotDetected
	case errors.Is(err, ErrNonRetryable):
		return ClassificationNonRetryable
	case errors.Is(err, context.Canceled):
		return ClassificationNonRetryable
	default:
		return ClassificationRetryable
	}
}

// Config tunes the backoff schedule.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultConfig returns base 1s, max 60s, 3 retries.
func DefaultConfig() Config {
	return Config{BaseDelay: time.Second, MaxDelay: 60 * time.Second, MaxRetries: 3}
}

// Controller layers exponential backoff with a per-source circuit breaker
// around connector calls.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewController builds a Controller. A zero Config uses DefaultConfig.
func NewController(cfg Config) *Controller {
	if cfg.MaxRetries == 0 && cfg.BaseDelay == 0 {
		cfg = DefaultConfig()
	}
	return &Controller{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (c *Controller) breakerFor(source string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.breakers[source]
	if ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	b = gobreaker.NewCircuitBreaker(settings)
	c.breakers[source] = b
	return b
}

// State reports the current open/half-open/closed state of a source's
// breaker, for health and metrics reporting.
func (c *Controller) State(source string) gobreaker.State {
	return c.breakerFor(source).State()
}

// Do runs fn through the source's circuit breaker and, on a retryable
// failure, retries with exponential backoff and jitter up to MaxRetries.
// Non-retryable and robot-detected errors are returned immediately without
// consuming a retry.
func (c *Controller) Do(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	breaker := c.breakerFor(source)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseDelay
	b.MaxInterval = c.cfg.MaxDelay
	b.Multiplier = 2

	operation := func() (struct{}, error) {
		_, err := breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, fmt.Errorf("%s: circuit open: %w", source, err)
		}
		switch Classify(err) {
		case ClassificationNonRetryable, ClassificationRobotDetected:
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
	)
	return err
}
