package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/provenance/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed Queue for multi-process deployments: one list
// per (task_type, priority) holds pending tasks, RPOPLPUSH moves a task
// onto the task type's processing list, a hash records each reservation,
// and a sorted set tracks visibility deadlines for the sweep. Reservation
// bookkeeping is written with a TxPipeline, as the Redis rate limiter
// does for its window updates.
type Redis struct {
	client            *redis.Client
	visibilityTimeout time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRedis builds a Redis-backed queue. visibilityTimeout of zero uses 30s.
func NewRedis(client *redis.Client, visibilityTimeout time.Duration) *Redis {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &Redis{client: client, visibilityTimeout: visibilityTimeout, stopCh: make(chan struct{})}
}

var priorityOrder = []types.JobPriority{
	types.JobPriorityUrgent, types.JobPriorityHigh, types.JobPriorityNormal, types.JobPriorityLow,
}

func pendingKey(taskType types.TaskType, priority types.JobPriority) string {
	return fmt.Sprintf("provenance:queue:%s:%s", taskType, priority)
}

func processingKey(taskType types.TaskType) string {
	return fmt.Sprintf("provenance:queue:%s:processing", taskType)
}

func deadlinesKey(taskType types.TaskType) string {
	return fmt.Sprintf("provenance:queue:%s:deadlines", taskType)
}

func tombstoneKey() string {
	return "provenance:queue:tombstoned_jobs"
}

// Start launches the visibility-timeout sweep goroutine.
func (q *Redis) Start() {
	q.wg.Add(1)
	go q.sweepLoop()
}

// Stop halts the sweep goroutine.
func (q *Redis) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

func (q *Redis) sweepLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			for _, tt := range types.AllTaskTypes {
				q.sweepExpired(tt)
			}
		}
	}
}

func (q *Redis) sweepExpired(taskType types.TaskType) {
	ctx := context.Background()
	now := time.Now()
	expired, err := q.client.ZRangeByScore(ctx, deadlinesKey(taskType), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixNano()),
	}).Result()
	if err != nil {
		return
	}
	for _, reservationID := range expired {
		_ = q.requeueReservation(ctx, taskType, reservationID)
	}
}

// Enqueue implements Queue.
func (q *Redis) Enqueue(task *types.WorkerTask) error {
	ctx := context.Background()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return q.client.LPush(ctx, pendingKey(task.TaskType, task.Priority), data).Err()
}

// Reserve implements Queue: it polls each priority list for taskType in
// rank order and, when none holds a task, sleeps up to 200ms and polls
// again until a task arrives, ctx ends, or timeout elapses.
func (q *Redis) Reserve(ctx context.Context, taskType types.TaskType, timeout time.Duration) (*Reservation, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, p := range priorityOrder {
			res, ok, err := q.tryReserve(ctx, taskType, p)
			if err != nil {
				return nil, err
			}
			if ok {
				return res, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}
		wait := 200 * time.Millisecond
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *Redis) tryReserve(ctx context.Context, taskType types.TaskType, priority types.JobPriority) (*Reservation, bool, error) {
	raw, err := q.client.RPopLPush(ctx, pendingKey(taskType, priority), processingKey(taskType)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reserve from redis: %w", err)
	}

	var task types.WorkerTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, false, fmt.Errorf("unmarshal reserved task: %w", err)
	}

	tombstoned, err := q.client.SIsMember(ctx, tombstoneKey(), task.JobID).Result()
	if err == nil && tombstoned {
		_ = q.client.LRem(ctx, processingKey(taskType), 1, raw).Err()
		return q.tryReserve(ctx, taskType, priority)
	}

	reservationID := reservationIDFor(&task, time.Now().UnixNano())
	task.VisibilityDeadline = time.Now().Add(q.visibilityTimeout)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, reservationHashKey(taskType), reservationID, raw)
	pipe.ZAdd(ctx, deadlinesKey(taskType), redis.Z{Score: float64(task.VisibilityDeadline.UnixNano()), Member: reservationID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("record reservation: %w", err)
	}

	return &Reservation{ID: reservationID, Task: &task}, true, nil
}

func reservationHashKey(taskType types.TaskType) string {
	return fmt.Sprintf("provenance:queue:%s:reservations", taskType)
}

// Ack implements Queue.
func (q *Redis) Ack(reservationID string) error {
	ctx := context.Background()
	taskType, raw, err := q.findReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey(taskType), 1, raw)
	pipe.HDel(ctx, reservationHashKey(taskType), reservationID)
	pipe.ZRem(ctx, deadlinesKey(taskType), reservationID)
	_, err = pipe.Exec(ctx)
	return err
}

// Nack implements Queue: the task is returned to its lane immediately.
func (q *Redis) Nack(reservationID string) error {
	ctx := context.Background()
	taskType, raw, err := q.findReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	return q.requeueRaw(ctx, taskType, reservationID, raw)
}

func (q *Redis) requeueReservation(ctx context.Context, taskType types.TaskType, reservationID string) error {
	raw, err := q.client.HGet(ctx, reservationHashKey(taskType), reservationID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return q.requeueRaw(ctx, taskType, reservationID, raw)
}

func (q *Redis) requeueRaw(ctx context.Context, taskType types.TaskType, reservationID, raw string) error {
	var task types.WorkerTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return fmt.Errorf("unmarshal requeued task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey(taskType), 1, raw)
	pipe.HDel(ctx, reservationHashKey(taskType), reservationID)
	pipe.ZRem(ctx, deadlinesKey(taskType), reservationID)

	tombstoned, err := q.client.SIsMember(ctx, tombstoneKey(), task.JobID).Result()
	if err == nil && tombstoned {
		_, execErr := pipe.Exec(ctx)
		return execErr
	}

	data, err := json.Marshal(&task)
	if err != nil {
		return fmt.Errorf("marshal requeued task: %w", err)
	}
	pipe.LPush(ctx, pendingKey(taskType, task.Priority), data)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Redis) findReservation(ctx context.Context, reservationID string) (types.TaskType, string, error) {
	for _, tt := range types.AllTaskTypes {
		raw, err := q.client.HGet(ctx, reservationHashKey(tt), reservationID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", "", err
		}
		return tt, raw, nil
	}
	return "", "", ErrUnknownReservation
}

// Tombstone implements Queue.
func (q *Redis) Tombstone(jobID string) error {
	return q.client.SAdd(context.Background(), tombstoneKey(), jobID).Err()
}

// Depth implements Queue: the sum of all priority lists for taskType.
func (q *Redis) Depth(taskType types.TaskType) int {
	ctx := context.Background()
	total := 0
	for _, p := range priorityOrder {
		n, err := q.client.LLen(ctx, pendingKey(taskType, p)).Result()
		if err == nil {
			total += int(n)
		}
	}
	return total
}
