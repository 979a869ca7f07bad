// Package orchestrator implements the submit_batch / cancel / status /
// report operations that front the job state store, queue, and
// idempotency store for external callers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/provenance/pkg/idempotency"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/log"
	"github.com/cuemby/provenance/pkg/queue"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxProvidersPerBatch is the hard cap on submit_batch's provider list.
const MaxProvidersPerBatch = 1000

// ErrTooManyProviders is returned when a batch exceeds MaxProvidersPerBatch.
var ErrTooManyProviders = fmt.Errorf("orchestrator: batch exceeds %d providers", MaxProvidersPerBatch)

// ErrEmptyBatch is returned when a batch has no providers.
var ErrEmptyBatch = errors.New("orchestrator: batch must contain at least one provider")

// ErrJobNotFound is returned by Status/Report/Cancel for an unknown job id.
var ErrJobNotFound = errors.New("orchestrator: job not found")

// SubmitRequest is the submit_batch input.
type SubmitRequest struct {
	IdempotencyKey string                       `json:"idempotency_key,omitempty"`
	Priority       types.JobPriority             `json:"priority"`
	Providers      []types.ProviderSubmission    `json:"providers" validate:"required,min=1,dive"`
	Options        types.ValidationOptions       `json:"options"`
}

// Orchestrator is the entry point the API/CLI layer calls into.
type Orchestrator struct {
	store     jobstore.Store
	queue     queue.Queue
	idem      *idempotency.Checker
	validate  *validator.Validate
}

// New builds an Orchestrator over its three collaborators.
func New(store jobstore.Store, q queue.Queue, idem *idempotency.Checker) *Orchestrator {
	return &Orchestrator{store: store, queue: q, idem: idem, validate: validator.New()}
}

// SubmitBatch validates the request, resolves idempotency, persists the
// Job, and enqueues one WorkerTask per (provider, enabled task type).
func (o *Orchestrator) SubmitBatch(ctx context.Context, req SubmitRequest) (*types.Job, error) {
	if len(req.Providers) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(req.Providers) > MaxProvidersPerBatch {
		return nil, ErrTooManyProviders
	}
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid submit request: %w", err)
	}
	if req.Options.ConfidenceThreshold == 0 && req.Options.MaxRetries == 0 && req.Options.TimeoutSeconds == 0 {
		req.Options = types.DefaultValidationOptions()
	}
	if err := o.validate.Struct(req.Options); err != nil {
		return nil, fmt.Errorf("invalid validation options: %w", err)
	}
	if req.Priority == "" {
		req.Priority = types.JobPriorityNormal
	}

	jobID := uuid.NewString()

	hash, err := idempotency.HashRequest(req)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		// No caller key: the request hash itself is the key, so an
		// identical keyless resubmission replays the original job.
		req.IdempotencyKey = hash
	}
	outcome, existingJobID, err := o.idem.Reserve(req.IdempotencyKey, hash, jobID, time.Now())
	if err != nil {
		return nil, err
	}
	if outcome == idempotency.OutcomeReplay {
		return o.store.GetJob(existingJobID)
	}

	providerIDs := make([]string, len(req.Providers))
	submissions := make(map[string]types.ProviderSubmission, len(req.Providers))
	for i, p := range req.Providers {
		providerIDs[i] = p.ProviderID
		submissions[p.ProviderID] = p
	}

	now := time.Now()
	job := &types.Job{
		JobID:             jobID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            types.JobStatusPending,
		Priority:          req.Priority,
		ProviderCount:     len(req.Providers),
		ValidationOptions: req.Options,
		IdempotencyKey:    req.IdempotencyKey,
		ProviderIDs:       providerIDs,
		Submissions:       submissions,
	}
	if err := o.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	for _, p := range req.Providers {
		for _, taskType := range enabledTaskTypes(req.Options) {
			task := &types.WorkerTask{
				TaskID:         uuid.NewString(),
				JobID:          jobID,
				ProviderID:     p.ProviderID,
				TaskType:       taskType,
				Payload:        p,
				Priority:       req.Priority,
				ScheduledAt:    now,
				TimeoutSeconds: req.Options.TimeoutSeconds,
				MaxRetries:     req.Options.MaxRetries,
			}
			if err := o.queue.Enqueue(task); err != nil {
				log.WithJobID(jobID).Error().Err(err).
					Str("provider_id", p.ProviderID).
					Str("task_type", string(taskType)).
					Msg("failed to enqueue task")
			}
		}
	}

	job.Status = types.JobStatusRunning
	if err := o.store.UpdateJob(job); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	log.Logger.Info().Str("job_id", jobID).Int("providers", len(req.Providers)).Msg("batch submitted")
	return job, nil
}

func enabledTaskTypes(opts types.ValidationOptions) []types.TaskType {
	var out []types.TaskType
	if opts.EnableIdentifierCheck {
		out = append(out, types.TaskTypeIdentifierCheck)
	}
	if opts.EnableAddressValidation {
		out = append(out, types.TaskTypeAddressValidation)
	}
	if opts.EnableDocumentProcessing {
		out = append(out, types.TaskTypeDocumentProcessing)
	}
	if opts.EnableLicenseValidation {
		out = append(out, types.TaskTypeLicenseVerification)
	}
	if opts.EnableEnrichment {
		out = append(out, types.TaskTypeEnrichmentLookup)
	}
	return out
}

// Status returns the current Job record.
func (o *Orchestrator) Status(jobID string) (*types.Job, error) {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Report returns every ProviderReport generated so far for a job.
func (o *Orchestrator) Report(jobID string) ([]*types.ProviderReport, error) {
	if _, err := o.Status(jobID); err != nil {
		return nil, err
	}
	return o.store.ListProviderReportsForJob(jobID)
}

// Cancel marks a job cancelled and tombstones its outstanding tasks in
// the queue; in-flight reservations drain naturally without being
// requeued.
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.Status(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if err := o.queue.Tombstone(jobID); err != nil {
		return fmt.Errorf("failed to tombstone queued tasks: %w", err)
	}

	job.Status = types.JobStatusCancelled
	job.UpdatedAt = time.Now()
	if err := o.store.UpdateJob(job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	log.Logger.Info().Str("job_id", jobID).Msg("job cancelled")
	return nil
}
