package metrics

import (
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// jobLister is the subset of jobstore.Store the collector needs. Declared
// locally (rather than importing jobstore) so that metrics depends only
// on pkg/types and any store with a ListJobs method can be collected.
type jobLister interface {
	ListJobs() ([]*types.Job, error)
}

// depthSource is the subset of queue.Queue the collector needs.
type depthSource interface {
	Depth(taskType types.TaskType) int
}

// Collector periodically samples job-status counts and queue depths into
// the gauge metrics above, since those are point-in-time facts rather
// than events a caller can increment inline.
type Collector struct {
	store  jobLister
	queue  depthSource
	stopCh chan struct{}
}

// NewCollector builds a Collector over a Job State Store and Queue.
func NewCollector(store jobLister, q depthSource) *Collector {
	return &Collector{
		store:  store,
		queue:  q,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling on a 15s tick, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectJobMetrics()
	c.collectQueueMetrics()
}

func (c *Collector) collectJobMetrics() {
	jobs, err := c.store.ListJobs()
	if err != nil {
		return
	}

	counts := make(map[types.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
	}

	for _, status := range []types.JobStatus{
		types.JobStatusPending, types.JobStatusRunning,
		types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusCancelled,
	} {
		JobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectQueueMetrics() {
	for _, taskType := range types.AllTaskTypes {
		QueueDepth.WithLabelValues(string(taskType)).Set(float64(c.queue.Depth(taskType)))
	}
}
