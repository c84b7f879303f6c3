package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"forge/internal/pipeline"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Runner is implemented by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, pipelineID string) error
}

// Worker handles run tasks. A returned error makes asynq redeliver the task,
// which resumes the pipeline at its first unfinished stage.
type Worker struct {
	runner Runner
	logger *zap.Logger
}

func NewWorker(runner Runner, logger *zap.Logger) *Worker {
	return &Worker{runner: runner, logger: logger}
}

func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PipelineRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.PipelineID == "" {
		w.logger.Error("drop malformed run task", zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("malformed payload: %w", asynq.SkipRetry)
	}

	log := w.logger.With(zap.String("pipeline_id", payload.PipelineID))
	log.Info("run task received")
	err := w.runner.Run(ctx, payload.PipelineID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipeline.ErrNotFound):
		log.Warn("run task for unknown pipeline")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		log.Warn("pipeline run interrupted, will be redelivered", zap.Error(err))
		return err
	}
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypePipelineRun, w)
	return mux
}

func NewServer(redis asynq.RedisClientOpt, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueuePipelines: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("run task failed", zap.ByteString("payload", task.Payload()), zap.Error(err))
		}),
	})
}
