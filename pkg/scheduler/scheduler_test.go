package scheduler

import (
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/events"
	"github.com/cuemby/provenance/pkg/jobstore"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, jobstore.Store) {
	t.Helper()
	store, err := jobstore.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return New(store, broker, 50*time.Millisecond), store
}

func seedRunningJob(t *testing.T, store jobstore.Store, providerID string) *types.Job {
	t.Helper()
	job := &types.Job{
		JobID:         "job-1",
		Status:        types.JobStatusRunning,
		ProviderCount: 1,
		ProviderIDs:   []string{providerID},
		Submissions:   map[string]types.ProviderSubmission{providerID: {ProviderID: providerID, Identifier: "1234567893"}},
		ValidationOptions: types.ValidationOptions{
			EnableIdentifierCheck: true,
			ConfidenceThreshold:   0.5,
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(job))
	return job
}

func TestReconcile_GeneratesReportOnceTasksComplete(t *testing.T) {
	s, store := newTestScheduler(t)
	seedRunningJob(t, store, "P1")

	require.NoError(t, store.PutTaskResult(&types.WorkerTaskResult{
		JobID: "job-1", ProviderID: "P1", TaskType: types.TaskTypeIdentifierCheck,
		Success: true, OverallConfidence: 0.95,
	}))

	s.reconcile()

	report, err := store.GetProviderReport("job-1", "P1")
	require.NoError(t, err)
	require.Equal(t, types.ValidationStatusValid, report.ValidationStatus)

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, types.JobStatusCompleted, job.Status)
	require.Equal(t, 1, job.CompletedCount)
}

func TestReconcile_SkipsProviderWithIncompleteTasks(t *testing.T) {
	s, store := newTestScheduler(t)
	job := seedRunningJob(t, store, "P1")
	job.ValidationOptions.EnableAddressValidation = true
	require.NoError(t, store.UpdateJob(job))

	require.NoError(t, store.PutTaskResult(&types.WorkerTaskResult{
		JobID: "job-1", ProviderID: "P1", TaskType: types.TaskTypeIdentifierCheck, Success: true,
	}))

	s.reconcile()

	_, err := store.GetProviderReport("job-1", "P1")
	require.ErrorIs(t, err, jobstore.ErrNotFound)

	got, err := store.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, types.JobStatusRunning, got.Status)
}

func TestReconcile_IgnoresNonRunningJobs(t *testing.T) {
	s, store := newTestScheduler(t)
	job := seedRunningJob(t, store, "P1")
	job.Status = types.JobStatusCancelled
	require.NoError(t, store.UpdateJob(job))

	s.reconcile()

	got, err := store.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, types.JobStatusCancelled, got.Status)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()
}
