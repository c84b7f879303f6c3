package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"forge/internal/pipeline"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type runnerFunc func(ctx context.Context, id string) error

func (f runnerFunc) Run(ctx context.Context, id string) error { return f(ctx, id) }

func TestProcessTask_RunsPipeline(t *testing.T) {
	var got string
	w := NewWorker(runnerFunc(func(_ context.Context, id string) error {
		got = id
		return nil
	}), zap.NewNop())

	task, err := NewPipelineRunTask("p-1")
	require.NoError(t, err)
	assert.Equal(t, TypePipelineRun, task.Type())

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, "p-1", got)
}

func TestProcessTask_UnknownPipelineSkipsRetry(t *testing.T) {
	w := NewWorker(runnerFunc(func(_ context.Context, id string) error {
		return fmt.Errorf("%w: %s", pipeline.ErrNotFound, id)
	}), zap.NewNop())

	task, err := NewPipelineRunTask("p-gone")
	require.NoError(t, err)
	err = w.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestProcessTask_InterruptedRunIsRetried(t *testing.T) {
	cause := fmt.Errorf("%w: redis down", pipeline.ErrStorage)
	w := NewWorker(runnerFunc(func(context.Context, string) error { return cause }), zap.NewNop())

	task, err := NewPipelineRunTask("p-1")
	require.NoError(t, err)
	err = w.ProcessTask(context.Background(), task)
	assert.Same(t, cause, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTask_MalformedPayload(t *testing.T) {
	called := false
	w := NewWorker(runnerFunc(func(context.Context, string) error {
		called = true
		return nil
	}), zap.NewNop())

	for _, payload := range []string{"not json", `{"pipeline_id":""}`} {
		err := w.ProcessTask(context.Background(), asynq.NewTask(TypePipelineRun, []byte(payload)))
		assert.ErrorIs(t, err, asynq.SkipRetry, payload)
	}
	assert.False(t, called)
}

func TestDispatcher_Options(t *testing.T) {
	d := NewDispatcher(nil, 5, 0)
	assert.Len(t, d.options("p-1"), 3)

	d = NewDispatcher(nil, 5, time.Hour)
	assert.Len(t, d.options("p-1"), 4)
}
