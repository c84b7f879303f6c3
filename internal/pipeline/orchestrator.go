package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNoChange = errors.New("no change")

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.emit.notifier = n }
}

// WithDispatcher replaces the in-process goroutine dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithRunContext sets the parent context of in-process runs. Cancelling it
// interrupts them between provider calls.
func WithRunContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.runCtx = ctx }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.rec.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator owns the pipeline lifecycle: it creates records, schedules
// runs and sequences stages through the executor.
type Orchestrator struct {
	store      Store
	rec        *recorder
	stages     []Stage
	executor   *Executor
	finalizer  *Finalizer
	dispatcher Dispatcher
	local      *LocalDispatcher
	runCtx     context.Context
	emit       emitter
	logger     *zap.Logger
	newID      func() string
}

func NewOrchestrator(store Store, stages []Stage, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		rec:    &recorder{store: store, now: time.Now},
		stages: stages,
		emit:   emitter{logger: logger},
		logger: logger,
		newID:  uuid.NewString,
		runCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.executor = newExecutor(o.rec, o.emit, logger)
	o.finalizer = &Finalizer{rec: o.rec}
	if o.dispatcher == nil {
		o.local = NewLocalDispatcher(o.runCtx, o.Run, logger)
		o.dispatcher = o.local
	}
	return o
}

// Start validates req, persists a new pipeline and schedules its run. It
// returns as soon as the record exists; no stage has run yet.
func (o *Orchestrator) Start(ctx context.Context, req GenerationRequest) (*Pipeline, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := o.rec.now()
	p := &Pipeline{
		ID:        o.newID(),
		Status:    StatusInitiated,
		UserID:    req.UserID,
		Request:   req,
		Stages:    make([]StageRecord, 0, len(o.stages)),
		Results:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, s := range o.stages {
		p.Stages = append(p.Stages, StageRecord{Name: s.Name, Status: StageIdle, Optional: s.Optional})
	}

	if err := o.store.Create(ctx, p); err != nil {
		o.logger.Error("fail to create pipeline", zap.String("pipeline_id", p.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	o.logger.Info("pipeline created",
		zap.String("pipeline_id", p.ID),
		zap.String("asset_id", req.AssetID),
		zap.String("quality", string(req.Quality)))
	o.emit.pipeline(p)

	if err := o.dispatcher.Dispatch(ctx, p.ID); err != nil {
		o.logger.Error("fail to dispatch pipeline", zap.String("pipeline_id", p.ID), zap.Error(err))
		failure := Failure{Kind: KindDispatch, Message: "pipeline could not be scheduled"}
		if _, ferr := o.Fail(context.WithoutCancel(ctx), p.ID, failure); ferr != nil {
			o.logger.Error("fail to mark undispatched pipeline failed", zap.String("pipeline_id", p.ID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("%w: dispatch: %w", ErrInitialization, err)
	}
	return p, nil
}

// Status returns the current snapshot. Unknown ids yield ErrNotFound.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Pipeline, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, filter ListFilter) ([]*Pipeline, error) {
	return o.store.List(ctx, filter)
}

// Run drives a pipeline through its stages. It returns nil once the pipeline
// is terminal, including when it failed; an error means the run was cut short
// and may be resumed by calling Run again.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	log := o.logger.With(zap.String("pipeline_id", id))

	p, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		log.Info("pipeline already finished", zap.String("status", string(p.Status)))
		return nil
	}
	if p.Status == StatusInitiated {
		p, err = o.rec.update(ctx, id, func(p *Pipeline) error {
			p.Status = StatusProcessing
			return nil
		})
		if err != nil {
			return o.abort(ctx, id, "", err)
		}
		o.emit.pipeline(p)
	}

	for _, stage := range o.stages {
		rec := p.Stage(stage.Name)
		if rec == nil {
			return o.abort(ctx, id, stage.Name, fmt.Errorf("%w: stage %s missing from pipeline", ErrIntegrity, stage.Name))
		}
		if rec.Status.Done() {
			continue
		}
		if rec.Status == StageFailed {
			// an earlier run recorded the stage failure but not the pipeline's
			return o.abort(ctx, id, stage.Name, fmt.Errorf("stage %s already failed", stage.Name))
		}

		if rec.Status == StageIdle && !stage.Applies(p.Request) {
			p, err = o.executor.Skip(ctx, id, stage.Name)
			if err != nil {
				return o.abort(ctx, id, stage.Name, err)
			}
			log.Info("stage skipped", zap.String("stage", stage.Name))
			continue
		}

		outcome := o.executor.Run(ctx, id, stage)
		if outcome.Interrupted {
			return outcome.Err
		}
		if outcome.Err != nil {
			if outcome.Pipeline != nil && outcome.Pipeline.Status == StatusFailed {
				return nil
			}
			return o.abort(ctx, id, stage.Name, outcome.Err)
		}
		p = outcome.Pipeline
	}

	done, err := o.finalizer.Finalize(ctx, id, o.stages)
	if err != nil {
		return o.abort(ctx, id, "", err)
	}
	log.Info("pipeline completed", zap.String("asset_url", done.Results[ResultAssetURL]))
	o.emit.pipeline(done)
	return nil
}

// Fail moves a non-terminal pipeline to failed. Failing a pipeline that is
// already terminal is a no-op that returns the stored snapshot.
func (o *Orchestrator) Fail(ctx context.Context, id string, f Failure) (*Pipeline, error) {
	return o.failIf(ctx, id, f, func(*Pipeline) bool { return true })
}

// SweepStale fails processing pipelines that have not been updated since
// cutoff and returns how many were failed.
func (o *Orchestrator) SweepStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := o.store.List(ctx, ListFilter{Status: StatusProcessing, UpdatedBefore: cutoff})
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, p := range stale {
		f := Failure{Stage: p.ActiveStage(), Kind: KindStale, Message: "pipeline stopped making progress"}
		res, err := o.failIf(ctx, p.ID, f, func(cur *Pipeline) bool {
			return cur.Status == StatusProcessing && cur.UpdatedAt.Before(cutoff)
		})
		if err != nil {
			o.logger.Error("fail to sweep stale pipeline", zap.String("pipeline_id", p.ID), zap.Error(err))
			continue
		}
		if res.Status == StatusFailed && res.Error != nil && res.Error.Kind == KindStale {
			failed++
		}
	}
	return failed, nil
}

func (o *Orchestrator) failIf(ctx context.Context, id string, f Failure, cond func(*Pipeline) bool) (*Pipeline, error) {
	p, err := o.rec.update(ctx, id, func(p *Pipeline) error {
		if p.Status.Terminal() || !cond(p) {
			return errNoChange
		}
		markFailed(p, f, o.rec.now())
		return nil
	})
	if errors.Is(err, errNoChange) {
		return o.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Warn("pipeline failed",
		zap.String("pipeline_id", id),
		zap.String("stage", f.Stage),
		zap.String("kind", string(f.Kind)))
	o.emit.pipeline(p)
	return p, nil
}

// abort records an unexpected failure of the run itself. If even that write
// fails the original error is returned so the run can be retried.
func (o *Orchestrator) abort(ctx context.Context, id, stage string, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	f := Failure{Stage: stage, Kind: failureKind(ctx, cause)}
	var ie *IntegrityError
	switch {
	case errors.As(cause, &ie):
		f.Stage = ie.Stage
		f.Message = fmt.Sprintf("%s: missing %s", ie.Stage, ie.Field)
	case f.Kind == KindStorage:
		f.Message = "pipeline state could not be saved"
	default:
		f.Message = "pipeline could not be completed"
	}
	if f.Stage != "" && ie == nil {
		f.Message = f.Stage + ": " + f.Message
	}
	o.logger.Error("pipeline run aborted", zap.String("pipeline_id", id), zap.String("stage", stage), zap.Error(cause))
	if _, err := o.Fail(ctx, id, f); err != nil {
		return fmt.Errorf("%w (and failed to record it: %v)", cause, err)
	}
	return nil
}

// Wait blocks until in-process runs return. It is a no-op with an external
// dispatcher.
func (o *Orchestrator) Wait() {
	if o.local != nil {
		o.local.Wait()
	}
}
