package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher schedules a background Run for a created pipeline. Dispatch
// must return without waiting for the run.
type Dispatcher interface {
	Dispatch(ctx context.Context, pipelineID string) error
}

// LocalDispatcher runs each pipeline in its own goroutine of this process.
type LocalDispatcher struct {
	run    func(ctx context.Context, pipelineID string) error
	ctx    context.Context
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewLocalDispatcher(ctx context.Context, run func(ctx context.Context, pipelineID string) error, logger *zap.Logger) *LocalDispatcher {
	return &LocalDispatcher{run: run, ctx: ctx, logger: logger}
}

// Dispatch ignores ctx for the run itself; request contexts end with the
// response while the pipeline keeps going.
func (d *LocalDispatcher) Dispatch(_ context.Context, pipelineID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("pipeline run panicked", zap.String("pipeline_id", pipelineID), zap.Any("panic", r))
			}
		}()
		if err := d.run(d.ctx, pipelineID); err != nil {
			d.logger.Error("pipeline run ended with error", zap.String("pipeline_id", pipelineID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
