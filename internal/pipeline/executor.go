package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forge/internal/provider"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "forge/pipeline"

// StageOutcome is the result of one executor run of a stage.
type StageOutcome struct {
	Outputs  map[string]string
	Attempts int
	Err      error
	Kind     FailureKind
	// Interrupted is set when the caller's context ended. The stage is left
	// active so a later Run resumes it.
	Interrupted bool
	// Pipeline is the snapshot after the final write, nil if that write failed.
	Pipeline *Pipeline
}

// Executor runs single stages under their policy and owns every stage status
// write.
type Executor struct {
	rec    *recorder
	emit   emitter
	logger *zap.Logger
	tracer trace.Tracer
}

func newExecutor(rec *recorder, emit emitter, logger *zap.Logger) *Executor {
	return &Executor{
		rec:    rec,
		emit:   emit,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Run activates the stage, calls it with retries until it succeeds, is
// rejected or its timeout expires, and records the outcome. A failed stage
// fails its pipeline in the same write.
func (e *Executor) Run(ctx context.Context, pipelineID string, stage Stage) StageOutcome {
	log := e.logger.With(zap.String("pipeline_id", pipelineID), zap.String("stage", stage.Name))

	started, err := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
		rec := p.Stage(stage.Name)
		if rec == nil {
			return fmt.Errorf("%w: unknown stage %s", ErrIllegalTransition, stage.Name)
		}
		for _, dep := range stage.DependsOn {
			up := p.Stage(dep)
			if up == nil || !up.Status.Done() {
				return fmt.Errorf("%w: %s started before %s finished", ErrIllegalTransition, stage.Name, dep)
			}
		}
		if rec.Status == StageIdle {
			now := e.rec.now()
			rec.Status = StageActive
			rec.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		log.Error("fail to activate stage", zap.Error(err))
		return StageOutcome{Err: err, Kind: failureKind(ctx, err)}
	}
	e.emit.stage(started, stage.Name, EventStage)

	policy := stage.Policy.For(started.Request.Quality)
	stageCtx, cancel := ctx, context.CancelFunc(func() {})
	if policy.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
	}
	defer cancel()

	in := StageInput{
		PipelineID: pipelineID,
		Request:    started.Request,
		Results:    started.Clone().Results,
		Scratch:    make(map[string]string),
		Progress:   e.progressWriter(ctx, pipelineID, stage.Name, log),
	}

	attempts := started.Stage(stage.Name).Attempts
	var outputs map[string]string
	operation := func() error {
		attempts++
		if _, err := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
			p.Stage(stage.Name).Attempts = attempts
			return nil
		}); err != nil {
			return backoff.Permanent(err)
		}

		attemptCtx, span := e.tracer.Start(stageCtx, "stage "+stage.Name, trace.WithAttributes(
			attribute.String("pipeline.id", pipelineID),
			attribute.String("pipeline.stage", stage.Name),
			attribute.Int("pipeline.stage.attempt", attempts),
		))
		out, err := stage.Run(attemptCtx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage attempt failed")
		}
		span.End()

		if err == nil {
			outputs = out
			return nil
		}
		log.Warn("stage attempt failed", zap.Int("attempt", attempts), zap.Error(err))
		if provider.IsRejected(err) || stageCtx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(policy), uint64(max(policy.MaxRetries, 0))),
		stageCtx,
	))

	if ctx.Err() != nil {
		log.Warn("stage interrupted", zap.Int("attempts", attempts), zap.Error(ctx.Err()))
		return StageOutcome{Attempts: attempts, Err: ctx.Err(), Interrupted: true}
	}

	if err != nil {
		kind := failureKind(stageCtx, err)
		failure := Failure{Stage: stage.Name, Kind: kind, Message: failureMessage(stage.Name, kind, policy, attempts)}
		log.Error("stage failed", zap.String("kind", string(kind)), zap.Int("attempts", attempts), zap.Error(err))
		failed, werr := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
			markFailed(p, failure, e.rec.now())
			return nil
		})
		if werr != nil {
			// the storage fault takes precedence so the eventual record names it
			log.Error("fail to record stage failure", zap.Error(werr))
			return StageOutcome{Attempts: attempts, Err: errors.Join(werr, err), Kind: KindStorage}
		}
		e.emit.stage(failed, stage.Name, EventStage)
		e.emit.pipeline(failed)
		return StageOutcome{Attempts: attempts, Err: err, Kind: kind, Pipeline: failed}
	}

	done, err := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
		now := e.rec.now()
		rec := p.Stage(stage.Name)
		rec.Status = StageCompleted
		rec.Progress = 100
		rec.FinishedAt = &now
		if p.Results == nil {
			p.Results = make(map[string]string, len(outputs))
		}
		for k, v := range outputs {
			p.Results[k] = v
		}
		return nil
	})
	if err != nil {
		log.Error("fail to record stage completion", zap.Error(err))
		return StageOutcome{Attempts: attempts, Err: err, Kind: failureKind(ctx, err)}
	}
	log.Info("stage completed", zap.Int("attempts", attempts))
	e.emit.stage(done, stage.Name, EventStage)
	return StageOutcome{Outputs: outputs, Attempts: attempts, Pipeline: done}
}

// Skip marks an idle optional stage as skipped.
func (e *Executor) Skip(ctx context.Context, pipelineID, stage string) (*Pipeline, error) {
	p, err := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
		rec := p.Stage(stage)
		if rec == nil {
			return fmt.Errorf("%w: unknown stage %s", ErrIllegalTransition, stage)
		}
		now := e.rec.now()
		rec.Status = StageSkipped
		rec.FinishedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit.stage(p, stage, EventStage)
	return p, nil
}

// progressWriter persists provider progress. Values only move forward and
// stay below 100 until the stage completes.
func (e *Executor) progressWriter(ctx context.Context, pipelineID, stage string, log *zap.Logger) func(int) {
	var (
		mu   sync.Mutex
		last int
	)
	return func(percent int) {
		percent = min(max(percent, 0), 99)
		mu.Lock()
		defer mu.Unlock()
		if percent <= last {
			return
		}
		last = percent
		p, err := e.rec.update(ctx, pipelineID, func(p *Pipeline) error {
			rec := p.Stage(stage)
			if rec.Status == StageActive && percent > rec.Progress {
				rec.Progress = percent
			}
			return nil
		})
		if err != nil {
			log.Warn("fail to record stage progress", zap.Int("progress", percent), zap.Error(err))
			return
		}
		e.emit.stage(p, stage, EventProgress)
	}
}

func newBackOff(p Policy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	// the stage context bounds total time
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// markFailed moves the active stage, if any, and the pipeline to failed.
func markFailed(p *Pipeline, f Failure, now time.Time) {
	for i := range p.Stages {
		if p.Stages[i].Status == StageActive {
			p.Stages[i].Status = StageFailed
			p.Stages[i].FinishedAt = &now
			p.Stages[i].Error = f.Message
		}
	}
	p.Status = StatusFailed
	p.Error = &f
	p.CompletedAt = &now
}

func failureKind(stageCtx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, ErrStorage), errors.Is(err, ErrNotFound):
		return KindStorage
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case provider.IsRejected(err):
		return KindRejected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindProvider
	}
}

// failureMessage is the client facing summary. Raw causes only go to logs.
func failureMessage(stage string, kind FailureKind, policy Policy, attempts int) string {
	switch kind {
	case KindRejected:
		return stage + ": provider rejected the request"
	case KindTimeout:
		return fmt.Sprintf("%s: timed out after %s", stage, policy.Timeout)
	case KindStorage:
		return stage + ": pipeline state could not be saved"
	case KindIntegrity:
		return stage + ": stage ran out of order"
	default:
		return fmt.Sprintf("%s: provider unavailable after %d attempts", stage, attempts)
	}
}
