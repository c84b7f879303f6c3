// Package janitor fails pipelines whose run died without recording it.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = time.Minute

// Sweeper is implemented by *pipeline.Orchestrator.
type Sweeper interface {
	SweepStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor periodically fails processing pipelines that have not been updated
// for staleAfter.
type Janitor struct {
	cron       *cron.Cron
	sweeper    Sweeper
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// New schedules the sweep on spec, a standard five-field cron expression or a
// descriptor such as "@every 5m".
func New(sweeper Sweeper, spec string, staleAfter time.Duration, logger *zap.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper:    sweeper,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
	if _, err := j.cron.AddJob(spec, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop waits for a sweep in flight.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Run implements cron.Job.
func (j *Janitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	_, _ = j.Sweep(ctx)
}

func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.staleAfter)
	n, err := j.sweeper.SweepStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("stale sweep failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		j.logger.Warn("failed stale pipelines", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
