package pipeline

import (
	"context"
	"time"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	UserID        string
	Status        Status
	UpdatedBefore time.Time
	Limit         int
}

func (f ListFilter) Match(p *Pipeline) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !p.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// Store is durable, read-after-write consistent storage keyed by pipeline id.
//
// Update runs mutate against the current record and persists the result
// atomically for that key. An error from mutate aborts the update and is
// returned unchanged. Storage failures wrap ErrStorage; unknown ids return
// ErrNotFound.
type Store interface {
	Create(ctx context.Context, p *Pipeline) error
	Get(ctx context.Context, id string) (*Pipeline, error)
	Update(ctx context.Context, id string, mutate func(p *Pipeline) error) (*Pipeline, error)
	// List returns pipelines newest first.
	List(ctx context.Context, filter ListFilter) ([]*Pipeline, error)
}

// recorder is the only path the orchestrator and executor use to mutate
// pipelines; every write is checked against the state machine.
type recorder struct {
	store Store
	now   func() time.Time
}

func (r *recorder) update(ctx context.Context, id string, mutate func(p *Pipeline) error) (*Pipeline, error) {
	return r.store.Update(ctx, id, func(p *Pipeline) error {
		before := p.Clone()
		if err := mutate(p); err != nil {
			return err
		}
		p.UpdatedAt = r.now()
		return checkTransition(before, p)
	})
}
