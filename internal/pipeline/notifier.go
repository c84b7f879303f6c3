package pipeline

import (
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventPipeline EventType = "pipeline"
	EventStage    EventType = "stage"
	EventProgress EventType = "progress"
)

// Event describes one transition. Progress is the overall pipeline percentage.
type Event struct {
	Type        EventType   `json:"type"`
	PipelineID  string      `json:"pipelineId"`
	UserID      string      `json:"userId,omitempty"`
	Status      Status      `json:"status"`
	Stage       string      `json:"stage,omitempty"`
	StageStatus StageStatus `json:"stageStatus,omitempty"`
	Progress    int         `json:"progress"`
	Error       *Failure    `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// Notifier receives transition events. Implementations must not block;
// polling the store stays the source of truth.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type emitter struct {
	notifier Notifier
	logger   *zap.Logger
}

// PipelineEvent describes the pipeline-level state of p.
func PipelineEvent(p *Pipeline) Event {
	return Event{
		Type:       EventPipeline,
		PipelineID: p.ID,
		UserID:     p.UserID,
		Status:     p.Status,
		Progress:   p.Progress(),
		Error:      p.Error,
		At:         p.UpdatedAt,
	}
}

func (e emitter) pipeline(p *Pipeline) {
	e.emit(PipelineEvent(p))
}

func (e emitter) stage(p *Pipeline, name string, typ EventType) {
	ev := Event{
		Type:       typ,
		PipelineID: p.ID,
		UserID:     p.UserID,
		Status:     p.Status,
		Stage:      name,
		Progress:   p.Progress(),
		At:         p.UpdatedAt,
	}
	if rec := p.Stage(name); rec != nil {
		ev.StageStatus = rec.Status
	}
	e.emit(ev)
}

func (e emitter) emit(ev Event) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notifier panicked",
				zap.String("pipeline_id", ev.PipelineID),
				zap.Any("panic", r))
		}
	}()
	e.notifier.Notify(ev)
}
