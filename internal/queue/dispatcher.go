package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Dispatcher enqueues one run task per pipeline. The pipeline id doubles as
// the asynq task id, so dispatching twice is harmless.
type Dispatcher struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewDispatcher returns a dispatcher whose tasks may run for at most timeout
// and are redelivered up to maxRetry times.
func NewDispatcher(client *asynq.Client, maxRetry int, timeout time.Duration) *Dispatcher {
	return &Dispatcher{client: client, maxRetry: maxRetry, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ctx context.Context, pipelineID string) error {
	task, err := NewPipelineRunTask(pipelineID)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, d.options(pipelineID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue pipeline %s: %w", pipelineID, err)
	}
	return nil
}

func (d *Dispatcher) options(pipelineID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(pipelineID),
		asynq.Queue(QueuePipelines),
		asynq.MaxRetry(d.maxRetry),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}
	return opts
}
