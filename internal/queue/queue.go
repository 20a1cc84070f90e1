package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/impact-gateway/internal/worker"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"

	// VerifyMaxRetry bounds the background re-verifications of one webhook
	VerifyMaxRetry = 5
)

// Enqueuer is the part of asynq.Client used to schedule tasks
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// TaskInspector is the part of asynq.Inspector used to find finished tasks
// still holding a task id
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

// Queue wraps Asynq client and server mux
type Queue struct {
	Client    Enqueuer
	Inspector TaskInspector
	Mux       *asynq.ServeMux
	log       *zap.Logger
}

// NewQueue creates a new queue client and server mux
func NewQueue(redisURL string, log *zap.Logger) (*Queue, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	q := &Queue{
		Client:    asynq.NewClient(redisOpt),
		Inspector: asynq.NewInspector(redisOpt),
		Mux:       asynq.NewServeMux(),
		log:       log,
	}

	log.Info("queue client initialized")
	return q, nil
}

// ServerConfig returns the asynq server configuration for workers
func ServerConfig(concurrency int, log *zap.Logger) asynq.Config {
	return asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error("task failed",
				zap.String("type", task.Type()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
		Logger: zapAdapter{log.Sugar()},
	}
}

// RedisOpt parses the redis url for an asynq server
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	return asynq.ParseRedisURI(redisURL)
}

// ScheduleVerification enqueues a re-verification of transactionID.
// A task still waiting or running for the same transaction is not an error.
// One that already completed or ran out of retries is replaced.
func (q *Queue) ScheduleVerification(ctx context.Context, transactionID string) error {
	task, err := worker.NewVerifyPaymentTask(transactionID)
	if err != nil {
		return err
	}

	taskID := verifyTaskID(transactionID)
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(VerifyMaxRetry),
		asynq.TaskID(taskID),
		asynq.ProcessIn(30 * time.Second),
		asynq.Retention(24 * time.Hour),
	}
	log := q.log.With(zap.String("transaction_id", transactionID))

	info, err := q.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		replaced, rerr := q.releaseFinished(taskID)
		if rerr != nil {
			return fmt.Errorf("inspect verification task: %w", rerr)
		}
		if !replaced {
			log.Info("verification already scheduled")
			return nil
		}
		info, err = q.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// another webhook rescheduled it in between
			log.Info("verification already scheduled")
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("enqueue verification: %w", err)
	}

	log.Info("verification scheduled",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// releaseFinished deletes the task holding taskID when it is archived or
// completed, reporting whether the id is free again
func (q *Queue) releaseFinished(taskID string) (bool, error) {
	if q.Inspector == nil {
		return false, nil
	}

	existing, err := q.Inspector.GetTaskInfo(QueueCritical, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	switch existing.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		if err := q.Inspector.DeleteTask(QueueCritical, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return false, err
		}
		q.log.Info("replacing finished verification task",
			zap.String("task_id", taskID),
			zap.String("state", existing.State.String()),
		)
		return true, nil
	default:
		return false, nil
	}
}

func verifyTaskID(transactionID string) string {
	return "verify:" + transactionID
}

// Close gracefully closes the queue client and inspector
func (q *Queue) Close() error {
	if q.Inspector != nil {
		if err := q.Inspector.Close(); err != nil {
			q.log.Warn("failed to close queue inspector", zap.Error(err))
		}
	}
	if q.Client != nil {
		q.log.Info("closing queue client")
		return q.Client.Close()
	}
	return nil
}

// zapAdapter routes asynq's internal logs through zap
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (a zapAdapter) Debug(args ...interface{}) { a.s.Debug(args...) }
func (a zapAdapter) Info(args ...interface{})  { a.s.Info(args...) }
func (a zapAdapter) Warn(args ...interface{})  { a.s.Warn(args...) }
func (a zapAdapter) Error(args ...interface{}) { a.s.Error(args...) }
func (a zapAdapter) Fatal(args ...interface{}) { a.s.Fatal(args...) }
