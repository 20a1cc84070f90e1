package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisQueue(t *testing.T) (*Queue, *asynq.Inspector) {
	t.Helper()

	mr := miniredis.RunT(t)

	q, err := NewQueue("redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { inspector.Close() })

	return q, inspector
}

func TestScheduleVerification_Redis(t *testing.T) {
	ctx := context.Background()

	t.Run("Repeated failures share one waiting task", func(t *testing.T) {
		q, inspector := newRedisQueue(t)

		require.NoError(t, q.ScheduleVerification(ctx, "PAY-1"))
		require.NoError(t, q.ScheduleVerification(ctx, "PAY-1"))
		require.NoError(t, q.ScheduleVerification(ctx, "PAY-2"))

		scheduled, err := inspector.ListScheduledTasks(QueueCritical)
		require.NoError(t, err)
		assert.Len(t, scheduled, 2)
	})

	t.Run("Archived task is rescheduled", func(t *testing.T) {
		q, inspector := newRedisQueue(t)

		require.NoError(t, q.ScheduleVerification(ctx, "PAY-1"))
		require.NoError(t, inspector.ArchiveTask(QueueCritical, "verify:PAY-1"))

		require.NoError(t, q.ScheduleVerification(ctx, "PAY-1"))

		scheduled, err := inspector.ListScheduledTasks(QueueCritical)
		require.NoError(t, err)
		require.Len(t, scheduled, 1)
		assert.Equal(t, "verify:PAY-1", scheduled[0].ID)

		archived, err := inspector.ListArchivedTasks(QueueCritical)
		require.NoError(t, err)
		assert.Empty(t, archived)
	})
}
