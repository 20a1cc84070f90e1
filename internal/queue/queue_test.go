package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/worker"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func (m *MockEnqueuer) Close() error {
	return m.Called().Error(0)
}

type MockInspector struct {
	mock.Mock
}

func (m *MockInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	args := m.Called(queue, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func (m *MockInspector) DeleteTask(queue, id string) error {
	return m.Called(queue, id).Error(0)
}

func (m *MockInspector) Close() error {
	return m.Called().Error(0)
}

func optionValues(opts []asynq.Option) map[asynq.OptionType]interface{} {
	out := make(map[asynq.OptionType]interface{}, len(opts))
	for _, o := range opts {
		out[o.Type()] = o.Value()
	}
	return out
}

func TestScheduleVerification(t *testing.T) {
	t.Run("Enqueues on the critical queue", func(t *testing.T) {
		client := new(MockEnqueuer)
		q := &Queue{Client: client, log: zap.NewNop()}

		client.On("EnqueueContext", mock.Anything,
			mock.MatchedBy(func(task *asynq.Task) bool { return task.Type() == worker.TypeVerifyPayment }),
			mock.MatchedBy(func(opts []asynq.Option) bool {
				v := optionValues(opts)
				return v[asynq.QueueOpt] == QueueCritical &&
					v[asynq.MaxRetryOpt] == VerifyMaxRetry &&
					v[asynq.TaskIDOpt] == "verify:PAY-1"
			}),
		).Return(&asynq.TaskInfo{ID: "verify:PAY-1", Queue: QueueCritical}, nil)

		require.NoError(t, q.ScheduleVerification(context.Background(), "PAY-1"))
		client.AssertExpectations(t)
	})

	t.Run("Task still waiting is not an error", func(t *testing.T) {
		client := new(MockEnqueuer)
		inspector := new(MockInspector)
		q := &Queue{Client: client, Inspector: inspector, log: zap.NewNop()}

		client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()
		inspector.On("GetTaskInfo", QueueCritical, "verify:PAY-1").Return(&asynq.TaskInfo{ID: "verify:PAY-1", State: asynq.TaskStateRetry}, nil)

		assert.NoError(t, q.ScheduleVerification(context.Background(), "PAY-1"))
		client.AssertNumberOfCalls(t, "EnqueueContext", 1)
		inspector.AssertNotCalled(t, "DeleteTask", mock.Anything, mock.Anything)
	})

	t.Run("Finished task is replaced", func(t *testing.T) {
		for _, state := range []asynq.TaskState{asynq.TaskStateArchived, asynq.TaskStateCompleted} {
			t.Run(state.String(), func(t *testing.T) {
				client := new(MockEnqueuer)
				inspector := new(MockInspector)
				q := &Queue{Client: client, Inspector: inspector, log: zap.NewNop()}

				client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()
				client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(&asynq.TaskInfo{ID: "verify:PAY-1", Queue: QueueCritical}, nil).Once()
				inspector.On("GetTaskInfo", QueueCritical, "verify:PAY-1").Return(&asynq.TaskInfo{ID: "verify:PAY-1", State: state}, nil)
				inspector.On("DeleteTask", QueueCritical, "verify:PAY-1").Return(nil)

				require.NoError(t, q.ScheduleVerification(context.Background(), "PAY-1"))
				client.AssertNumberOfCalls(t, "EnqueueContext", 2)
				inspector.AssertExpectations(t)
			})
		}
	})

	t.Run("Inspector failure is reported", func(t *testing.T) {
		client := new(MockEnqueuer)
		inspector := new(MockInspector)
		q := &Queue{Client: client, Inspector: inspector, log: zap.NewNop()}

		client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()
		inspector.On("GetTaskInfo", QueueCritical, "verify:PAY-1").Return(nil, errors.New("connection reset"))

		err := q.ScheduleVerification(context.Background(), "PAY-1")
		assert.ErrorContains(t, err, "inspect verification task")
	})

	t.Run("Redis failure", func(t *testing.T) {
		client := new(MockEnqueuer)
		q := &Queue{Client: client, log: zap.NewNop()}

		client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

		err := q.ScheduleVerification(context.Background(), "PAY-1")
		assert.ErrorContains(t, err, "enqueue verification")
	})
}

func TestNewQueue_InvalidURL(t *testing.T) {
	_, err := NewQueue("http://not-redis", zap.NewNop())
	assert.Error(t, err)
}

func TestServerConfig(t *testing.T) {
	cfg := ServerConfig(10, zap.NewNop())
	assert.Equal(t, 10, cfg.Concurrency)
	assert.Contains(t, cfg.Queues, QueueCritical)
	assert.NotNil(t, cfg.ErrorHandler)
}
