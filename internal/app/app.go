// Package app assembles the pipeline service from configuration. The API
// server and the queue worker share it so both run identical stages.
package app

import (
	"context"
	"fmt"
	"time"

	"forge/internal/common"
	"forge/internal/notify"
	"forge/internal/pipeline"
	"forge/internal/provider"
	"forge/internal/server/dao"

	"go.uber.org/zap"
)

type Options struct {
	// Dispatcher overrides in-process runs, e.g. with the asynq dispatcher.
	Dispatcher pipeline.Dispatcher
	// RunContext is the parent of in-process runs.
	RunContext context.Context
	// Providers replaces the configured providers.
	Providers *provider.Set
}

type App struct {
	Config       common.Config
	Store        pipeline.Store
	Policies     map[string]pipeline.Policy
	Orchestrator *pipeline.Orchestrator
	Hub          *notify.Hub

	closers []func()
}

func New(ctx context.Context, cfg common.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Hub: notify.NewHub()}

	policies, err := pipeline.LoadPolicies(cfg.StagePolicyPath)
	if err != nil {
		return nil, err
	}
	if err := CheckStaleAfter(policies, cfg.StaleAfter); err != nil {
		return nil, err
	}
	a.Policies = policies

	var set provider.Set
	if opts.Providers != nil {
		set = *opts.Providers
	} else if set, err = NewProviders(ctx, cfg, logger); err != nil {
		return nil, err
	}

	store, closeStore, err := dao.NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open pipeline store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	notifiers := notify.Multi{a.Hub}
	if cfg.AMQPURL != "" {
		pub, err := notify.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		notifiers = append(notifiers, pub)
		a.closers = append(a.closers, func() { _ = pub.Close() })
	}

	orchOpts := []pipeline.Option{pipeline.WithNotifier(notifiers)}
	if opts.Dispatcher != nil {
		orchOpts = append(orchOpts, pipeline.WithDispatcher(opts.Dispatcher))
	}
	if opts.RunContext != nil {
		orchOpts = append(orchOpts, pipeline.WithRunContext(opts.RunContext))
	}
	a.Orchestrator = pipeline.NewOrchestrator(store, pipeline.DefaultStages(set, policies), logger, orchOpts...)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RunBudget is the longest a single run may take when every stage uses its
// whole timeout, plus slack for bookkeeping.
func RunBudget(policies map[string]pipeline.Policy) time.Duration {
	var total time.Duration
	for _, p := range policies {
		total += p.Longest()
	}
	return total + 5*time.Minute
}

// CheckStaleAfter rejects policies under which the janitor would fail a
// stage that is still inside its own timeout.
func CheckStaleAfter(policies map[string]pipeline.Policy, staleAfter time.Duration) error {
	if staleAfter <= 0 {
		return nil
	}
	for name, p := range policies {
		if d := p.Longest(); d >= staleAfter {
			return fmt.Errorf("stage %s timeout %s must be shorter than STALE_AFTER %s", name, d, staleAfter)
		}
	}
	return nil
}
