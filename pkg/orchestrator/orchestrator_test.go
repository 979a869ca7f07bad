package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/idempotency"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/queue"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	store, err := jobstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := queue.NewLocal(time.Minute)
	idem := idempotency.NewChecker(idempotency.NewBoltAdapter(store), 24*time.Hour)
	return New(store, q, idem)
}

func validSubmitRequest() SubmitRequest {
	return SubmitRequest{
		Priority:  types.JobPriorityNormal,
		Providers: []types.ProviderSubmission{{ProviderID: "P1", Identifier: "1234567893"}},
		Options:   types.DefaultValidationOptions(),
	}
}

func TestSubmitBatch_CreatesRunningJobAndEnqueuesTasks(t *testing.T) {
	o := newTestOrchestrator(t)
	job, err := o.SubmitBatch(context.Background(), validSubmitRequest())
	require.NoError(t, err)
	require.Equal(t, types.JobStatusRunning, job.Status)
	require.Equal(t, 1, job.ProviderCount)

	require.Greater(t, o.queue.Depth(types.TaskTypeIdentifierCheck), 0)
}

func TestSubmitBatch_EmptyBatchErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	req := validSubmitRequest()
	req.Providers = nil
	_, err := o.SubmitBatch(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestSubmitBatch_TooManyProvidersErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	req := validSubmitRequest()
	providers := make([]types.ProviderSubmission, MaxProvidersPerBatch+1)
	for i := range providers {
		providers[i] = types.ProviderSubmission{ProviderID: "P"}
	}
	req.Providers = providers
	_, err := o.SubmitBatch(context.Background(), req)
	require.ErrorIs(t, err, ErrTooManyProviders)
}

func TestSubmitBatch_IdempotentResubmissionReplaysJob(t *testing.T) {
	o := newTestOrchestrator(t)
	req := validSubmitRequest()
	req.IdempotencyKey = "batch-key-1"

	job1, err := o.SubmitBatch(context.Background(), req)
	require.NoError(t, err)

	job2, err := o.SubmitBatch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, job1.JobID, job2.JobID)
}

func TestSubmitBatch_IdempotencyKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	o := newTestOrchestrator(t)
	req := validSubmitRequest()
	req.IdempotencyKey = "batch-key-2"

	_, err := o.SubmitBatch(context.Background(), req)
	require.NoError(t, err)

	req2 := req
	req2.Providers = []types.ProviderSubmission{{ProviderID: "P2", Identifier: "1629060068"}}
	_, err = o.SubmitBatch(context.Background(), req2)
	require.ErrorIs(t, err, idempotency.ErrConflict)
}

func TestStatusReportCancel(t *testing.T) {
	o := newTestOrchestrator(t)
	job, err := o.SubmitBatch(context.Background(), validSubmitRequest())
	require.NoError(t, err)

	got, err := o.Status(job.JobID)
	require.NoError(t, err)
	require.Equal(t, job.JobID, got.JobID)

	reports, err := o.Report(job.JobID)
	require.NoError(t, err)
	require.Empty(t, reports)

	require.NoError(t, o.Cancel(job.JobID))
	cancelled, err := o.Status(job.JobID)
	require.NoError(t, err)
	require.Equal(t, types.JobStatusCancelled, cancelled.Status)
}

func TestStatus_UnknownJobErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Status("missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}
