// Package worker implements the worker pool: a fixed number of
// goroutines per task type, each repeating reserve -> rate-limit ->
// connector-call (through the retry controller) -> persist -> ack/nack.
// Grounded on this codebase's goroutine-pool-with-stopCh idiom.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/provenance/pkg/connector"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/log"
	"github.com/cuemby/provenance/pkg/metrics"
	"github.com/cuemby/provenance/pkg/queue"
	"github.com/cuemby/provenance/pkg/ratelimiter"
	"github.com/cuemby/provenance/pkg/retry"
	"github.com/cuemby/provenance/pkg/types"
)

// DefaultConcurrency is the per-task-type worker-goroutine count.
func DefaultConcurrency() map[types.TaskType]int {
	return map[types.TaskType]int{
		types.TaskTypeIdentifierCheck:     8,
		types.TaskTypeAddressValidation:   8,
		types.TaskTypeDocumentProcessing:  4,
		types.TaskTypeLicenseVerification: 2,
		types.TaskTypeEnrichmentLookup:    4,
	}
}

// rateLimiterSource maps a task type to its rate limiter source key.
func rateLimiterSource(taskType types.TaskType) string {
	switch taskType {
	case types.TaskTypeIdentifierCheck:
		return "identifier"
	case types.TaskTypeAddressValidation:
		return "address"
	case types.TaskTypeDocumentProcessing:
		return "document"
	case types.TaskTypeLicenseVerification:
		return "license"
	case types.TaskTypeEnrichmentLookup:
		return "enrichment"
	default:
		return "enrichment"
	}
}

// Config wires a Pool's collaborators.
type Config struct {
	Queue       queue.Queue
	Registry    *connector.Registry
	Limiter     ratelimiter.Limiter
	Retry       *retry.Controller
	Store       jobstore.Store
	Concurrency map[types.TaskType]int
}

// Pool runs the worker goroutines for every task type.
type Pool struct {
	cfg Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Pool. A nil Concurrency map uses DefaultConcurrency.
func New(cfg Config) *Pool {
	if cfg.Concurrency == nil {
		cfg.Concurrency = DefaultConcurrency()
	}
	return &Pool{cfg: cfg, stopCh: make(chan struct{})}
}

// Start launches every task type's worker goroutines.
func (p *Pool) Start() {
	for _, taskType := range types.AllTaskTypes {
		n := p.cfg.Concurrency[taskType]
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.workerLoop(taskType)
		}
	}
}

// Stop signals every worker goroutine to exit and waits for them.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) workerLoop(taskType types.TaskType) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		reservation, err := p.cfg.Queue.Reserve(ctx, taskType, 2*time.Second)
		cancel()
		if err != nil {
			continue
		}

		p.process(taskType, reservation)
	}
}

func (p *Pool) process(taskType types.TaskType, reservation *queue.Reservation) {
	task := reservation.Task
	logger := log.WithJobID(task.JobID)

	timer := metrics.NewTimer()

	source := rateLimiterSource(taskType)
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout(task))
	defer cancel()

	if err := p.cfg.Limiter.Acquire(ctx, source); err != nil {
		logger.Warn().Err(err).Str("provider_id", task.ProviderID).Msg("rate limiter acquisition aborted")
		_ = p.cfg.Queue.Nack(reservation.ID)
		return
	}

	conn, err := p.cfg.Registry.Get(taskType)
	if err != nil {
		logger.Error().Err(err).Msg("no connector registered for task type")
		_ = p.cfg.Queue.Ack(reservation.ID)
		return
	}

	var result *types.WorkerTaskResult
	task.Attempt++
	retryErr := p.cfg.Retry.Do(ctx, string(conn.Source()), func(ctx context.Context) error {
		r, execErr := conn.Execute(ctx, task)
		if execErr != nil {
			return execErr
		}
		result = r
		return nil // a clean miss (e.g. not found) is reported via result.Success, not an error
	})

	metrics.TaskDuration.WithLabelValues(string(taskType)).Observe(timer.Duration().Seconds())

	if retryErr != nil || result == nil {
		outcome := classificationLabel(retry.Classify(retryErr))
		metrics.TasksTotal.WithLabelValues(string(taskType), outcome).Inc()
		logger.Warn().Err(retryErr).Str("provider_id", task.ProviderID).Msg("task failed")

		result = &types.WorkerTaskResult{
			TaskType: taskType, ProviderID: task.ProviderID, JobID: task.JobID,
			Attempt: task.Attempt, Success: false, ErrorMessage: errMessage(retryErr),
			CompletedAt: time.Now(),
		}
		p.persistAndAck(reservation, result)
		return
	}

	outcome := "success"
	if !result.Success {
		outcome = "miss"
	}
	metrics.TasksTotal.WithLabelValues(string(taskType), outcome).Inc()
	p.persistAndAck(reservation, result)
}

func (p *Pool) persistAndAck(reservation *queue.Reservation, result *types.WorkerTaskResult) {
	if err := p.cfg.Store.PutTaskResult(result); err != nil {
		log.WithJobID(result.JobID).Error().Err(err).Msg("failed to persist task result")
	}
	_ = p.cfg.Queue.Ack(reservation.ID)
}

func taskTimeout(task *types.WorkerTask) time.Duration {
	if task.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(task.TimeoutSeconds) * time.Second
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func classificationLabel(c retry.Classification) string {
	switch c {
	case retry.ClassificationRobotDetected:
		return "robot_detected"
	case retry.ClassificationNonRetryable:
		return "non_retryable"
	default:
		return "retryable_exhausted"
	}
}
