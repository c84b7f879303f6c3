package notify

import "forge/internal/pipeline"

// Multi sends every event to each non-nil notifier in order.
type Multi []pipeline.Notifier

func (m Multi) Notify(e pipeline.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}
