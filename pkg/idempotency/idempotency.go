// Package idempotency implements the submit_batch idempotency-key
// semantics: a (key, request_hash) pair reserved once
// replays the original outcome on a matching resubmission and is
// rejected as a conflict on a mismatching one. Records expire after a
// configurable TTL (24h by default).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// ErrNotFound is returned by Store.Get when no record exists for a key.
var ErrNotFound = errors.New("idempotency: not found")

// ErrConflict is returned by Checker.Reserve when the key was already used
// with a different request body.
var ErrConflict = errors.New("idempotency: key reused with a different request")

// Store is the persistence contract for idempotency records. jobstore.Store
// satisfies this directly via its PutIdempotencyRecord/GetIdempotencyRecord
// methods through the BoltAdapter below.
type Store interface {
	Get(key string) (*types.IdempotencyRecord, error)
	Put(rec *types.IdempotencyRecord) error
}

// boltBackend is the subset of jobstore.Store that BoltAdapter wraps.
type boltBackend interface {
	GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error)
	PutIdempotencyRecord(rec *types.IdempotencyRecord) error
}

// BoltAdapter adapts a durable jobstore.Store to the Store interface,
// translating its not-found sentinel to ours.
type BoltAdapter struct {
	backend boltBackend
}

// NewBoltAdapter wraps a jobstore.Store (or anything satisfying
// boltBackend) for use as an idempotency Store.
func NewBoltAdapter(backend boltBackend) *BoltAdapter {
	return &BoltAdapter{backend: backend}
}

func (a *BoltAdapter) Get(key string) (*types.IdempotencyRecord, error) {
	rec, err := a.backend.GetIdempotencyRecord(key)
	if err != nil {
		// jobstore reports absence with its own sentinel; callers of this
		// package only need to know about ours.
		return nil, ErrNotFound
	}
	return rec, nil
}

func (a *BoltAdapter) Put(rec *types.IdempotencyRecord) error {
	return a.backend.PutIdempotencyRecord(rec)
}

// MemStore is an in-process Store, used in tests and by single-process
// deployments that run without a durable backend.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*types.IdempotencyRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*types.IdempotencyRecord)}
}

func (m *MemStore) Get(key string) (*types.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) Put(rec *types.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return nil
}

// Outcome classifies the result of a Reserve call.
type Outcome int

const (
	// OutcomeNew means no prior record existed; the caller should proceed
	// with a fresh submission and its own job id.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a prior, matching record exists; the caller
	// should return its job id without re-submitting.
	OutcomeReplay
)

// Checker enforces the check-reserve-replay protocol over a Store. It
// does not itself serialize concurrent Reserve calls for the same key
// across processes — the backing Store's Put is expected to be the
// atomicity boundary (a single bbolt row write, or a Redis SETNX in a
// future backend).
type Checker struct {
	store      Store
	defaultTTL time.Duration
}

// NewChecker builds a Checker. defaultTTL of zero uses a 24h default
// idempotency window.
func NewChecker(store Store, defaultTTL time.Duration) *Checker {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Checker{store: store, defaultTTL: defaultTTL}
}

// HashRequest computes the stable request hash used to detect a
// mismatching resubmission of an idempotency key.
func HashRequest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to hash request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Reserve checks whether key has been used before. On first use it
// records (key, requestHash, jobID) and returns OutcomeNew. On reuse with
// a matching hash it returns OutcomeReplay and the original jobID. On
// reuse with a mismatching hash it returns ErrConflict. Expired records
// are treated as absent and overwritten.
func (c *Checker) Reserve(key, requestHash, jobID string, now time.Time) (Outcome, string, error) {
	existing, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return OutcomeNew, "", err
		}
		return c.create(key, requestHash, jobID, now)
	}

	if existing.Expired(now) {
		return c.create(key, requestHash, jobID, now)
	}

	if existing.RequestHash != requestHash {
		return OutcomeNew, "", ErrConflict
	}

	return OutcomeReplay, existing.JobID, nil
}

func (c *Checker) create(key, requestHash, jobID string, now time.Time) (Outcome, string, error) {
	rec := &types.IdempotencyRecord{
		Key:         key,
		JobID:       jobID,
		RequestHash: requestHash,
		CreatedAt:   now,
		TTL:         c.defaultTTL,
	}
	if err := c.store.Put(rec); err != nil {
		return OutcomeNew, "", fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return OutcomeNew, jobID, nil
}
