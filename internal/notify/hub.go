// Package notify pushes pipeline events to live subscribers. Every sink is
// best effort: a slow or missing consumer never holds up a pipeline.
package notify

import (
	"sync"

	"forge/internal/pipeline"
)

const subscriberBuffer = 32

// Hub fans events out to subscribers by topic. A topic is either a pipeline
// id or a user topic built with UserTopic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[chan pipeline.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan pipeline.Event]struct{})}
}

func UserTopic(userID string) string {
	return "user:" + userID
}

// Subscribe returns a channel of events for topic and a func that must be
// called to release it.
func (h *Hub) Subscribe(topic string) (<-chan pipeline.Event, func()) {
	ch := make(chan pipeline.Event, subscriberBuffer)
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan pipeline.Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.topics[topic], ch)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			h.mu.Unlock()
		})
	}
}

// Notify delivers e to the pipeline topic and, when it has an owner, the
// user topic. Full subscriber buffers drop the event.
func (h *Hub) Notify(e pipeline.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.publish(e.PipelineID, e)
	if e.UserID != "" {
		h.publish(UserTopic(e.UserID), e)
	}
}

func (h *Hub) publish(topic string, e pipeline.Event) {
	for ch := range h.topics[topic] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
