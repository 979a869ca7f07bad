// Package queue implements one FIFO lane per task type with
// priority-based preemption, reservation-based
// delivery (at-least-once, visibility timeout, nack/ack), and tombstones
// for cancelled jobs. Grounded on this codebase's ticker+select background
// loop idiom for the visibility-timeout sweep.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/provenance/pkg/types"
)

// ErrEmpty is returned by Reserve when no task is currently available.
var ErrEmpty = errors.New("queue: no task available")

// ErrUnknownReservation is returned by Ack/Nack when the reservation id
// is not (or is no longer) outstanding.
var ErrUnknownReservation = errors.New("queue: unknown or expired reservation")

// Reservation is handed back by Reserve and must be presented to Ack/Nack.
type Reservation struct {
	ID   string
	Task *types.WorkerTask
}

// Queue is the abstraction workers and the orchestrator depend on.
type Queue interface {
	Enqueue(task *types.WorkerTask) error
	// Reserve pops the highest-priority, oldest-enqueued task of taskType
	// not currently reserved or tombstoned. It blocks up to timeout when
	// the lane is empty.
	Reserve(ctx context.Context, taskType types.TaskType, timeout time.Duration) (*Reservation, error)
	Ack(reservationID string) error
	Nack(reservationID string) error
	// Tombstone marks every task for jobID as dead; future Reserve calls
	// skip them and in-flight reservations are dropped on their next sweep.
	Tombstone(jobID string) error
	Depth(taskType types.TaskType) int
	Start()
	Stop()
}

type item struct {
	task       *types.WorkerTask
	seq        int64 // insertion order, for FIFO tie-break within a priority
	index      int   // heap bookkeeping
}

// lane is a priority-ordered FIFO for one task type, backed by
// container/heap: higher types.JobPriority.Rank() first, ties broken by
// insertion order.
type lane struct {
	items []*item
}

func (l *lane) Len() int { return len(l.items) }

func (l *lane) Less(i, j int) bool {
	pi, pj := l.items[i].task.Priority.Rank(), l.items[j].task.Priority.Rank()
	if pi != pj {
		return pi > pj // higher rank first
	}
	return l.items[i].seq < l.items[j].seq
}

func (l *lane) Swap(i, j int) {
	l.items[i], l.items[j] = l.items[j], l.items[i]
	l.items[i].index = i
	l.items[j].index = j
}

func (l *lane) Push(x any) {
	it := x.(*item)
	it.index = len(l.items)
	l.items = append(l.items, it)
}

func (l *lane) Pop() any {
	old := l.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	l.items = old[:n-1]
	return it
}

type inFlight struct {
	reservationID      string
	task               *types.WorkerTask
	visibilityDeadline time.Time
}

// Local is an in-process, mutex-guarded Queue. It is the default backend
// for a single-worker-process deployment; a Redis-backed variant can
// satisfy the same interface for multi-process deployments.
type Local struct {
	mu          sync.Mutex
	lanes       map[types.TaskType]*lane
	seq         int64
	inFlight    map[string]*inFlight
	reservedSeq int64
	tombstoned  map[string]bool // jobID -> dead

	visibilityTimeout time.Duration
	stopCh            chan struct{}
	wg                sync.WaitGroup

	reservable chan struct{} // closed-and-replaced to wake blocked Reserve calls
}

// NewLocal creates an in-process queue. visibilityTimeout is how long a
// reservation is held before being returned to its lane automatically;
// zero uses 30s.
func NewLocal(visibilityTimeout time.Duration) *Local {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	q := &Local{
		lanes:             make(map[types.TaskType]*lane),
		inFlight:          make(map[string]*inFlight),
		tombstoned:        make(map[string]bool),
		visibilityTimeout: visibilityTimeout,
		stopCh:            make(chan struct{}),
		reservable:        make(chan struct{}),
	}
	for _, tt := range types.AllTaskTypes {
		q.lanes[tt] = &lane{}
	}
	return q
}

// Start launches the visibility-timeout sweep goroutine.
func (q *Local) Start() {
	q.wg.Add(1)
	go q.sweepLoop()
}

// Stop halts the sweep goroutine and waits for it to exit.
func (q *Local) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

func (q *Local) sweepLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.sweepExpired()
		}
	}
}

func (q *Local) sweepExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for id, inf := range q.inFlight {
		if now.After(inf.visibilityDeadline) {
			delete(q.inFlight, id)
			if !q.tombstoned[inf.task.JobID] {
				q.requeueLocked(inf.task)
			}
		}
	}
}

func (q *Local) requeueLocked(task *types.WorkerTask) {
	l := q.lanes[task.TaskType]
	q.seq++
	heap.Push(l, &item{task: task, seq: q.seq})
	q.wakeLocked()
}

func (q *Local) wakeLocked() {
	close(q.reservable)
	q.reservable = make(chan struct{})
}

// Enqueue implements Queue.
func (q *Local) Enqueue(task *types.WorkerTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[task.TaskType]
	if !ok {
		l = &lane{}
		q.lanes[task.TaskType] = l
	}
	q.seq++
	heap.Push(l, &item{task: task, seq: q.seq})
	q.wakeLocked()
	return nil
}

// Reserve implements Queue.
func (q *Local) Reserve(ctx context.Context, taskType types.TaskType, timeout time.Duration) (*Reservation, error) {
	deadline := time.Now().Add(timeout)
	for {
		res, ok := q.tryReserve(taskType)
		if ok {
			return res, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}

		q.mu.Lock()
		wake := q.reservable
		q.mu.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *Local) tryReserve(taskType types.TaskType) (*Reservation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[taskType]
	if !ok || l.Len() == 0 {
		return nil, false
	}

	for l.Len() > 0 {
		it := heap.Pop(l).(*item)
		if q.tombstoned[it.task.JobID] {
			continue
		}
		reservationID := reservationIDFor(it.task, q.nextReservedSeqLocked())
		it.task.VisibilityDeadline = time.Now().Add(q.visibilityTimeout)
		q.inFlight[reservationID] = &inFlight{
			reservationID:      reservationID,
			task:               it.task,
			visibilityDeadline: it.task.VisibilityDeadline,
		}
		return &Reservation{ID: reservationID, Task: it.task}, true
	}
	return nil, false
}

func (q *Local) nextReservedSeqLocked() int64 {
	q.reservedSeq++
	return q.reservedSeq
}

func reservationIDFor(task *types.WorkerTask, n int64) string {
	return task.JobID + "/" + task.ProviderID + "/" + string(task.TaskType) + "/" + itoa(n)
}

func itoa(n int64) string {
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

// Ack implements Queue: the task completed and is discarded.
func (q *Local) Ack(reservationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inFlight[reservationID]; !ok {
		return ErrUnknownReservation
	}
	delete(q.inFlight, reservationID)
	return nil
}

// Nack implements Queue: the task is returned to its lane immediately,
// without waiting for the visibility timeout.
func (q *Local) Nack(reservationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	inf, ok := q.inFlight[reservationID]
	if !ok {
		return ErrUnknownReservation
	}
	delete(q.inFlight, reservationID)
	if !q.tombstoned[inf.task.JobID] {
		q.requeueLocked(inf.task)
	}
	return nil
}

// Tombstone implements Queue.
func (q *Local) Tombstone(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tombstoned[jobID] = true
	return nil
}

// Depth implements Queue.
func (q *Local) Depth(taskType types.TaskType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[taskType]
	if !ok {
		return 0
	}
	return l.Len()
}
