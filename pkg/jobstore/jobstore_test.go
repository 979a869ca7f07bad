package jobstore

import (
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestJobCreateGetUpdate(t *testing.T) {
	store := newTestStore(t)

	job := &types.Job{
		JobID:         "job-1",
		Status:        types.JobStatusPending,
		Priority:      types.JobPriorityNormal,
		ProviderCount: 3,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, job.ProviderCount, got.ProviderCount)
	require.Equal(t, types.JobStatusPending, got.Status)

	got.Status = types.JobStatusRunning
	require.NoError(t, store.UpdateJob(got))

	reread, err := store.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, types.JobStatusRunning, reread.Status)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetJob("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTaskResultRoundTrip(t *testing.T) {
	store := newTestStore(t)

	result := &types.WorkerTaskResult{
		JobID:             "job-1",
		ProviderID:        "P1",
		TaskType:          types.TaskTypeIdentifierCheck,
		Success:           true,
		OverallConfidence: 0.95,
	}
	require.NoError(t, store.PutTaskResult(result))

	got, err := store.GetTaskResult("job-1", "P1", types.TaskTypeIdentifierCheck)
	require.NoError(t, err)
	require.Equal(t, 0.95, got.OverallConfidence)

	_, err = store.GetTaskResult("job-1", "P1", types.TaskTypeLicenseVerification)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListTaskResultsForProvider(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutTaskResult(&types.WorkerTaskResult{
		JobID: "job-1", ProviderID: "P1", TaskType: types.TaskTypeIdentifierCheck, Success: true,
	}))
	require.NoError(t, store.PutTaskResult(&types.WorkerTaskResult{
		JobID: "job-1", ProviderID: "P1", TaskType: types.TaskTypeLicenseVerification, Success: true,
	}))
	require.NoError(t, store.PutTaskResult(&types.WorkerTaskResult{
		JobID: "job-1", ProviderID: "P2", TaskType: types.TaskTypeIdentifierCheck, Success: true,
	}))

	results, err := store.ListTaskResultsForProvider("job-1", "P1")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestProviderReportRoundTrip(t *testing.T) {
	store := newTestStore(t)

	report := &types.ProviderReport{
		JobID:             "job-1",
		ProviderID:        "P1",
		OverallConfidence: 0.91,
		ValidationStatus:  types.ValidationStatusValid,
	}
	require.NoError(t, store.PutProviderReport(report))

	got, err := store.GetProviderReport("job-1", "P1")
	require.NoError(t, err)
	require.Equal(t, types.ValidationStatusValid, got.ValidationStatus)

	reports, err := store.ListProviderReportsForJob("job-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
}

func TestIdempotencyRecordRoundTrip(t *testing.T) {
	store := newTestStore(t)

	rec := &types.IdempotencyRecord{
		Key:         "k1",
		JobID:       "job-1",
		RequestHash: "abc",
		CreatedAt:   time.Now(),
		TTL:         24 * time.Hour,
	}
	require.NoError(t, store.PutIdempotencyRecord(rec))

	got, err := store.GetIdempotencyRecord("k1")
	require.NoError(t, err)
	require.Equal(t, "job-1", got.JobID)
}
