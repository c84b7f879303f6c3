package pipeline

import "fmt"

// checkTransition is the assertion layer every store mutation passes
// through. It enforces the state machine, append-only results and terminal
// immutability by comparing the record before and after a mutation.
func checkTransition(before, after *Pipeline) error {
	if before.Status.Terminal() {
		return fmt.Errorf("%w: pipeline %s is %s", ErrIllegalTransition, before.ID, before.Status)
	}
	if after.ID != before.ID || !after.CreatedAt.Equal(before.CreatedAt) {
		return fmt.Errorf("%w: identity fields changed", ErrIllegalTransition)
	}
	if !after.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, after.Status)
	}
	if after.Status != before.Status && !before.Status.CanTransition(after.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, before.Status, after.Status)
	}
	if len(after.Stages) != len(before.Stages) {
		return fmt.Errorf("%w: stage list changed", ErrIllegalTransition)
	}
	active := 0
	for i, prev := range before.Stages {
		next := after.Stages[i]
		if next.Name != prev.Name {
			return fmt.Errorf("%w: stage order changed at %d", ErrIllegalTransition, i)
		}
		if next.Status != prev.Status && !prev.Status.CanTransition(next.Status) {
			return fmt.Errorf("%w: stage %s %s -> %s", ErrIllegalTransition, prev.Name, prev.Status, next.Status)
		}
		if next.Status == StageActive {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("%w: %d active stages", ErrIllegalTransition, active)
	}
	for k, v := range before.Results {
		if got, ok := after.Results[k]; !ok || got != v {
			return fmt.Errorf("%w: result %q overwritten", ErrIllegalTransition, k)
		}
	}
	switch after.Status {
	case StatusCompleted:
		if after.CompletedAt == nil || after.Error != nil {
			return fmt.Errorf("%w: completed pipeline must have completedAt and no error", ErrIllegalTransition)
		}
	case StatusFailed:
		if after.CompletedAt == nil || after.Error == nil {
			return fmt.Errorf("%w: failed pipeline must have completedAt and error", ErrIllegalTransition)
		}
	default:
		if after.CompletedAt != nil || after.Error != nil {
			return fmt.Errorf("%w: non-terminal pipeline carries terminal fields", ErrIllegalTransition)
		}
	}
	return nil
}
