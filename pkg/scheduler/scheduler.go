// Package scheduler implements the progress scheduler: on a fixed tick
// it recomputes each running job's progress,
// generates a ProviderReport for any provider whose enabled tasks have
// all reached a terminal outcome, and flips a job to completed once
// every provider has one. Grounded on this codebase's ticker+select
// background-loop idiom.
package scheduler

import (
	"time"

	"github.com/cuemby/provenance/pkg/aggregator"
	"github.com/cuemby/provenance/pkg/events"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/log"
	"github.com/cuemby/provenance/pkg/metrics"
	"github.com/cuemby/provenance/pkg/rules"
	"github.com/cuemby/provenance/pkg/types"
)

// Scheduler periodically reconciles job progress against the task
// results recorded in the Job State Store.
type Scheduler struct {
	store   jobstore.Store
	engine  *rules.Engine
	broker  *events.Broker
	tickEvery time.Duration

	stopCh chan struct{}
	done   chan struct{}
}

// New builds a Scheduler. tickEvery of zero uses 2s.
func New(store jobstore.Store, broker *events.Broker, tickEvery time.Duration) *Scheduler {
	if tickEvery <= 0 {
		tickEvery = 2 * time.Second
	}
	return &Scheduler{
		store:     store,
		engine:    rules.NewEngine(),
		broker:    broker,
		tickEvery: tickEvery,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the reconcile loop in a goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts the reconcile loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reconcile()
		}
	}
}

func (s *Scheduler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		metrics.SchedulerCyclesTotal.Inc()
		metrics.SchedulerCycleDuration.Observe(timer.Duration().Seconds())
	}()

	jobs, err := s.store.ListJobs()
	if err != nil {
		log.Logger.Error().Err(err).Msg("scheduler: failed to list jobs")
		return
	}

	for _, job := range jobs {
		if job.Status != types.JobStatusRunning {
			continue
		}
		s.reconcileJob(job)
	}
}

func (s *Scheduler) reconcileJob(job *types.Job) {
	logger := log.WithJobID(job.JobID)

	existingReports, err := s.store.ListProviderReportsForJob(job.JobID)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: failed to list existing reports")
		return
	}
	reported := make(map[string]bool, len(existingReports))
	for _, r := range existingReports {
		reported[r.ProviderID] = true
	}

	enabled := enabledTaskTypes(job.ValidationOptions)
	completed, failed := len(existingReports), 0
	for _, r := range existingReports {
		if r.ValidationStatus == types.ValidationStatusInvalid {
			failed++
		}
	}

	for _, providerID := range job.ProviderIDs {
		if reported[providerID] {
			continue
		}

		results, err := s.store.ListTaskResultsForProvider(job.JobID, providerID)
		if err != nil {
			logger.Error().Err(err).Str("provider_id", providerID).Msg("scheduler: failed to list task results")
			continue
		}
		if !allTasksDone(results, enabled) {
			continue
		}

		report := s.buildReport(job, providerID, results)
		if err := s.store.PutProviderReport(report); err != nil {
			logger.Error().Err(err).Str("provider_id", providerID).Msg("scheduler: failed to persist report")
			continue
		}
		metrics.ReportConfidence.Observe(report.OverallConfidence)
		metrics.ReportsByStatus.WithLabelValues(string(report.ValidationStatus)).Inc()

		completed++
		if report.ValidationStatus == types.ValidationStatusInvalid {
			failed++
		}
	}

	job.CompletedCount = completed
	job.FailedCount = failed
	if job.ProviderCount > 0 {
		job.ProgressPercentage = 100 * float64(completed) / float64(job.ProviderCount)
	}
	job.UpdatedAt = time.Now()

	if completed >= job.ProviderCount {
		job.Status = types.JobStatusCompleted
		if s.broker != nil {
			s.broker.PublishJobEvent(events.EventJobCompleted, job.JobID, map[string]string{
				"completed": itoa(completed), "failed": itoa(failed),
			})
		}
		metrics.JobProgressLatency.Observe(time.Since(job.CreatedAt).Seconds())
		logger.Info().Int("completed", completed).Int("failed", failed).Msg("job completed")
	}

	if err := s.store.UpdateJob(job); err != nil {
		logger.Error().Err(err).Msg("scheduler: failed to persist job progress")
	}
}

func (s *Scheduler) buildReport(job *types.Job, providerID string, taskResults []*types.WorkerTaskResult) *types.ProviderReport {
	byType := make(map[types.TaskType]*types.WorkerTaskResult, len(taskResults))
	for _, r := range taskResults {
		byType[r.TaskType] = r
	}

	submission := job.Submissions[providerID]
	submission.ProviderID = providerID

	results := s.engine.Run(submission, byType, time.Now())
	return aggregator.Aggregate(job.JobID, providerID, results, job.ValidationOptions.ConfidenceThreshold,
		"scheduler", job.CreatedAt)
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

func allTasksDone(results []*types.WorkerTaskResult, enabled map[types.TaskType]bool) bool {
	seen := make(map[types.TaskType]bool, len(results))
	for _, r := range results {
		seen[r.TaskType] = true
	}
	for tt := range enabled {
		if !seen[tt] {
			return false
		}
	}
	return true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
