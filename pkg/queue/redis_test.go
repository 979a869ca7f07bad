package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/provenance/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, 100*time.Millisecond)
}

func TestRedisEnqueueReserveAck(t *testing.T) {
	q := newTestRedisQueue(t)

	task := &types.WorkerTask{
		TaskID: "t1", JobID: "job-1", ProviderID: "P1",
		TaskType: types.TaskTypeIdentifierCheck, Priority: types.JobPriorityNormal,
	}
	require.NoError(t, q.Enqueue(task))
	require.Equal(t, 1, q.Depth(types.TaskTypeIdentifierCheck))

	res, err := q.Reserve(context.Background(), types.TaskTypeIdentifierCheck, time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-1", res.Task.JobID)
	require.Equal(t, 0, q.Depth(types.TaskTypeIdentifierCheck))

	require.NoError(t, q.Ack(res.ID))
	require.ErrorIs(t, q.Ack(res.ID), ErrUnknownReservation)
}

func TestRedisPriorityOrdering(t *testing.T) {
	q := newTestRedisQueue(t)

	require.NoError(t, q.Enqueue(&types.WorkerTask{TaskID: "low", JobID: "j", ProviderID: "p", TaskType: types.TaskTypeAddressValidation, Priority: types.JobPriorityLow}))
	require.NoError(t, q.Enqueue(&types.WorkerTask{TaskID: "urgent", JobID: "j", ProviderID: "p", TaskType: types.TaskTypeAddressValidation, Priority: types.JobPriorityUrgent}))

	res, err := q.Reserve(context.Background(), types.TaskTypeAddressValidation, time.Second)
	require.NoError(t, err)
	require.Equal(t, "urgent", res.Task.TaskID)
}

func TestRedisNackRequeuesImmediately(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Enqueue(&types.WorkerTask{TaskID: "t1", JobID: "j", ProviderID: "p", TaskType: types.TaskTypeLicenseVerification, Priority: types.JobPriorityNormal}))

	res, err := q.Reserve(context.Background(), types.TaskTypeLicenseVerification, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Nack(res.ID))
	require.Equal(t, 1, q.Depth(types.TaskTypeLicenseVerification))
}

func TestRedisTombstoneDropsReservedTask(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Enqueue(&types.WorkerTask{TaskID: "t1", JobID: "job-dead", ProviderID: "p", TaskType: types.TaskTypeEnrichmentLookup, Priority: types.JobPriorityNormal}))
	require.NoError(t, q.Tombstone("job-dead"))

	_, err := q.Reserve(context.Background(), types.TaskTypeEnrichmentLookup, 300*time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRedisSweepRequeuesExpiredReservation(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Enqueue(&types.WorkerTask{TaskID: "t1", JobID: "j", ProviderID: "p", TaskType: types.TaskTypeDocumentProcessing, Priority: types.JobPriorityNormal}))

	res, err := q.Reserve(context.Background(), types.TaskTypeDocumentProcessing, time.Second)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	q.sweepExpired(types.TaskTypeDocumentProcessing)

	require.Equal(t, 1, q.Depth(types.TaskTypeDocumentProcessing))
	_ = res
}
