// Package jobstore is the durable job state store: jobs, per-task results,
// and provider reports, keyed the way the data model requires —
// job_id -> Job, (job_id, provider_id, task_type) -> WorkerTaskResult,
// (job_id, provider_id) -> ProviderReport. All writes are atomic at the
// row level; reads observe the writer's own prior writes within a job.
package jobstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/provenance/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs             = []byte("jobs")
	bucketTaskResults      = []byte("task_results")
	bucketProviderReports  = []byte("provider_reports")
	bucketIdempotency      = []byte("idempotency_records")
)

// ErrNotFound is returned when a lookup key has no row.
var ErrNotFound = fmt.Errorf("jobstore: not found")

// Store is the durable job state store, implemented by BoltDB.
type Store interface {
	CreateJob(job *types.Job) error
	GetJob(jobID string) (*types.Job, error)
	UpdateJob(job *types.Job) error
	ListJobs() ([]*types.Job, error)

	PutTaskResult(result *types.WorkerTaskResult) error
	GetTaskResult(jobID, providerID string, taskType types.TaskType) (*types.WorkerTaskResult, error)
	ListTaskResultsForProvider(jobID, providerID string) ([]*types.WorkerTaskResult, error)

	PutProviderReport(report *types.ProviderReport) error
	GetProviderReport(jobID, providerID string) (*types.ProviderReport, error)
	ListProviderReportsForJob(jobID string) ([]*types.ProviderReport, error)

	PutIdempotencyRecord(rec *types.IdempotencyRecord) error
	GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error)

	Close() error
}

// BoltStore implements Store using an embedded BoltDB file, grounded on
// the bucket-per-entity / JSON-marshal / upsert-as-create pattern used
// throughout this codebase's storage layer.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a BoltDB-backed job state store
// at <dataDir>/provenance.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "provenance.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketTaskResults, bucketProviderReports, bucketIdempotency} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.JobID), data)
	})
}

// UpdateJob is an upsert, matching the rest of this store's write model.
func (s *BoltStore) UpdateJob(job *types.Job) error {
	return s.CreateJob(job)
}

func (s *BoltStore) GetJob(jobID string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	return jobs, err
}

func taskResultKey(jobID, providerID string, taskType types.TaskType) []byte {
	return []byte(strings.Join([]string{jobID, providerID, string(taskType)}, "/"))
}

func (s *BoltStore) PutTaskResult(result *types.WorkerTaskResult) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskResults)
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put(taskResultKey(result.JobID, result.ProviderID, result.TaskType), data)
	})
}

func (s *BoltStore) GetTaskResult(jobID, providerID string, taskType types.TaskType) (*types.WorkerTaskResult, error) {
	var result types.WorkerTaskResult
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskResults)
		data := b.Get(taskResultKey(jobID, providerID, taskType))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BoltStore) ListTaskResultsForProvider(jobID, providerID string) ([]*types.WorkerTaskResult, error) {
	prefix := []byte(jobID + "/" + providerID + "/")
	var results []*types.WorkerTaskResult
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTaskResults)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var result types.WorkerTaskResult
			if err := json.Unmarshal(v, &result); err != nil {
				return err
			}
			results = append(results, &result)
		}
		return nil
	})
	return results, err
}

func providerReportKey(jobID, providerID string) []byte {
	return []byte(jobID + "/" + providerID)
}

func (s *BoltStore) PutProviderReport(report *types.ProviderReport) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProviderReports)
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		return b.Put(providerReportKey(report.JobID, report.ProviderID), data)
	})
}

func (s *BoltStore) GetProviderReport(jobID, providerID string) (*types.ProviderReport, error) {
	var report types.ProviderReport
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProviderReports)
		data := b.Get(providerReportKey(jobID, providerID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *BoltStore) ListProviderReportsForJob(jobID string) ([]*types.ProviderReport, error) {
	prefix := []byte(jobID + "/")
	var reports []*types.ProviderReport
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProviderReports)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var report types.ProviderReport
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			reports = append(reports, &report)
		}
		return nil
	})
	return reports, err
}

func (s *BoltStore) PutIdempotencyRecord(rec *types.IdempotencyRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Key), data)
	})
}

func (s *BoltStore) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var rec types.IdempotencyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
