package idempotency

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestReserve_FirstUseIsNew(t *testing.T) {
	c := NewChecker(NewMemStore(), time.Hour)

	outcome, jobID, err := c.Reserve("key-1", "hash-a", "job-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, OutcomeNew, outcome)
	require.Equal(t, "job-1", jobID)
}

func TestReserve_MatchingReplay(t *testing.T) {
	c := NewChecker(NewMemStore(), time.Hour)
	now := time.Now()

	_, _, err := c.Reserve("key-1", "hash-a", "job-1", now)
	require.NoError(t, err)

	outcome, jobID, err := c.Reserve("key-1", "hash-a", "job-2", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, OutcomeReplay, outcome)
	require.Equal(t, "job-1", jobID, "replay must return the original job id, not the new submission's")
}

func TestReserve_MismatchedHashConflicts(t *testing.T) {
	c := NewChecker(NewMemStore(), time.Hour)
	now := time.Now()

	_, _, err := c.Reserve("key-1", "hash-a", "job-1", now)
	require.NoError(t, err)

	_, _, err = c.Reserve("key-1", "hash-b", "job-2", now.Add(time.Minute))
	require.ErrorIs(t, err, ErrConflict)
}

func TestReserve_ExpiredRecordIsTreatedAsAbsent(t *testing.T) {
	c := NewChecker(NewMemStore(), time.Minute)
	now := time.Now()

	_, _, err := c.Reserve("key-1", "hash-a", "job-1", now)
	require.NoError(t, err)

	outcome, jobID, err := c.Reserve("key-1", "hash-b", "job-2", now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, OutcomeNew, outcome)
	require.Equal(t, "job-2", jobID)
}

func TestHashRequest_StableForEqualInput(t *testing.T) {
	type req struct {
		ProviderID string
		Threshold  float64
	}
	h1, err := HashRequest(req{ProviderID: "P1", Threshold: 0.8})
	require.NoError(t, err)
	h2, err := HashRequest(req{ProviderID: "P1", Threshold: 0.8})
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := HashRequest(req{ProviderID: "P2", Threshold: 0.8})
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestBoltAdapter_TranslatesNotFound(t *testing.T) {
	backend := &fakeBoltBackend{}
	adapter := NewBoltAdapter(backend)

	_, err := adapter.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

var errStubNotFound = errors.New("stub: not found")

// fakeBoltBackend stands in for jobstore.Store's idempotency methods
// without pulling in a real BoltDB file for this unit test.
type fakeBoltBackend struct{}

func (f *fakeBoltBackend) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	return nil, errStubNotFound
}

func (f *fakeBoltBackend) PutIdempotencyRecord(rec *types.IdempotencyRecord) error {
	return nil
}
