package queue

import (
	"context"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_EnqueueIsIdempotent(t *testing.T) {
	addr := os.Getenv("FORGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FORGE_TEST_REDIS_ADDR not set")
	}
	opt := asynq.RedisClientOpt{Addr: addr}
	client := asynq.NewClient(opt)
	defer client.Close()
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	id := "dispatch-test-" + t.Name()
	_ = inspector.DeleteTask(QueuePipelines, id)
	t.Cleanup(func() { _ = inspector.DeleteTask(QueuePipelines, id) })

	d := NewDispatcher(client, 3, 0)
	require.NoError(t, d.Dispatch(context.Background(), id))
	require.NoError(t, d.Dispatch(context.Background(), id))

	info, err := inspector.GetTaskInfo(QueuePipelines, id)
	require.NoError(t, err)
	assert.Equal(t, TypePipelineRun, info.Type)
	assert.Equal(t, 3, info.MaxRetry)
}
