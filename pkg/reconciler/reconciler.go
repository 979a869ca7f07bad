// Package reconciler guards against work lost between the Orchestrator
// persisting a Job and the Queue actually holding a task for every
// enabled (provider, task_type) pair — a crash in that window, or a
// restart against a non-durable queue backend, would otherwise strand a
// running job with no worker ever picking it up. On a fixed tick it
// re-derives the expected task set for every running job from the Job
// State Store and re-enqueues whatever is missing. Grounded on this
// codebase's ticker+select background-reconciliation loop.
package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/log"
	"github.com/cuemby/provenance/pkg/metrics"
	"github.com/cuemby/provenance/pkg/queue"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/rs/zerolog"
)

// Reconciler re-enqueues tasks for running jobs whose enabled
// (provider, task_type) pairs have no task result, when that task type's
// lane has no pending tasks.
type Reconciler struct {
	store     jobstore.Store
	queue     queue.Queue
	tickEvery time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewReconciler builds a Reconciler. tickEvery of zero uses 10s.
func NewReconciler(store jobstore.Store, q queue.Queue, tickEvery time.Duration) *Reconciler {
	if tickEvery <= 0 {
		tickEvery = 10 * time.Second
	}
	return &Reconciler{
		store:     store,
		queue:     q,
		tickEvery: tickEvery,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler and waits for the loop to exit.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.done
}

func (r *Reconciler) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Reconcile performs one sweep over every running job, re-enqueuing any
// enabled (provider, task_type) pair that has no task result, but only
// while the queue reports zero pending tasks for that task type; in-flight
// reservations are not consulted. It is exported so callers (tests, or a
// one-shot requeue on process startup) can trigger it outside the
// ticker cadence.
func (r *Reconciler) Reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		metrics.ReconciliationCyclesTotal.Inc()
		timer.ObserveDuration(metrics.ReconciliationDuration)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := r.store.ListJobs()
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	for _, job := range jobs {
		if job.Status != types.JobStatusRunning {
			continue
		}
		if err := r.reconcileJob(job); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to reconcile job")
		}
	}

	return nil
}

func (r *Reconciler) reconcileJob(job *types.Job) error {
	enabled := enabledTaskTypes(job.ValidationOptions)
	if len(enabled) == 0 {
		return nil
	}

	for _, providerID := range job.ProviderIDs {
		results, err := r.store.ListTaskResultsForProvider(job.JobID, providerID)
		if err != nil {
			return fmt.Errorf("list task results for %s: %w", providerID, err)
		}
		done := make(map[types.TaskType]bool, len(results))
		for _, res := range results {
			done[res.TaskType] = true
		}

		submission := job.Submissions[providerID]
		for taskType := range enabled {
			if done[taskType] {
				continue
			}
			if r.queue.Depth(taskType) > 0 {
				// Conservative: a non-empty lane might already hold this
				// exact task. Re-enqueuing blindly would duplicate work,
				// so only fill lanes the queue reports fully drained.
				continue
			}

			task := &types.WorkerTask{
				TaskID:         reconcileTaskID(job.JobID, providerID, taskType),
				JobID:          job.JobID,
				ProviderID:     providerID,
				TaskType:       taskType,
				Payload:        submission,
				Priority:       job.Priority,
				ScheduledAt:    time.Now(),
				TimeoutSeconds: 30,
				MaxRetries:     3,
			}
			if err := r.queue.Enqueue(task); err != nil {
				r.logger.Error().Err(err).Str("job_id", job.JobID).
					Str("provider_id", providerID).Str("task_type", string(taskType)).
					Msg("failed to re-enqueue stranded task")
				continue
			}
			r.logger.Warn().Str("job_id", job.JobID).Str("provider_id", providerID).
				Str("task_type", string(taskType)).Msg("re-enqueued stranded task")
		}
	}

	return nil
}

func enabledTaskTypes(opts types.ValidationOptions) map[types.TaskType]bool {
	out := make(map[types.TaskType]bool)
	if opts.EnableIdentifierCheck {
		out[types.TaskTypeIdentifierCheck] = true
	}
	if opts.EnableAddressValidation {
		out[types.TaskTypeAddressValidation] = true
	}
	if opts.EnableDocumentProcessing {
		out[types.TaskTypeDocumentProcessing] = true
	}
	if opts.EnableLicenseValidation {
		out[types.TaskTypeLicenseVerification] = true
	}
	if opts.EnableEnrichment {
		out[types.TaskTypeEnrichmentLookup] = true
	}
	return out
}

func reconcileTaskID(jobID, providerID string, taskType types.TaskType) string {
	return fmt.Sprintf("%s/%s/%s/reconcile-%d", jobID, providerID, taskType, time.Now().UnixNano())
}
