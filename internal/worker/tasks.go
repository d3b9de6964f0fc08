package worker

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"esadad-service/internal/services"
)

// Task Types
const (
	TypeConfirmPayment = "esadad:confirm-payment"
)

const defaultConfirmRetries = 5

func NewConfirmPaymentTask(job services.ConfirmationJob, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = defaultConfirmRetries
	}
	return asynq.NewTask(TypeConfirmPayment, data, asynq.MaxRetry(maxRetry), asynq.Queue("critical")), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands confirmations to asynq for retry.
type Queue struct {
	client   enqueuer
	maxRetry int
}

func NewQueue(client *asynq.Client, maxRetry int) *Queue {
	return &Queue{client: client, maxRetry: maxRetry}
}

func (q *Queue) EnqueueConfirmation(ctx context.Context, job services.ConfirmationJob) error {
	task, err := NewConfirmPaymentTask(job, q.maxRetry)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task)
	return err
}
