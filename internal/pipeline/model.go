package pipeline

import (
	"encoding/json"
	"time"
)

// Status is the overall state of a pipeline.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var pipelineTransitions = map[Status][]Status{
	StatusInitiated:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the pipeline may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range pipelineTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StageStatus is the state of a single stage.
type StageStatus string

const (
	StageIdle      StageStatus = "idle"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// active -> active covers progress/attempt updates and a resumed run.
var stageTransitions = map[StageStatus][]StageStatus{
	StageIdle:   {StageActive, StageSkipped},
	StageActive: {StageActive, StageCompleted, StageFailed},
}

func (s StageStatus) CanTransition(next StageStatus) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Done reports whether downstream stages may start after s.
func (s StageStatus) Done() bool {
	return s == StageCompleted || s == StageSkipped
}

func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageSkipped
}

// stage names
const (
	StagePromptOptimization = "prompt-optimization"
	StageImageGeneration    = "image-generation"
	StageModelConversion    = "model-conversion"
	StagePostProcessing     = "post-processing"
)

// result keys
const (
	ResultOptimizedPrompt   = "optimizedPrompt"
	ResultImageURL          = "imageUrl"
	ResultModelURL          = "modelUrl"
	ResultProcessedModelURL = "processedModelUrl"
	ResultAssetURL          = "assetUrl"
	ResultAssetID           = "assetId"
)

// FailureKind classifies why a pipeline failed.
type FailureKind string

const (
	KindProvider  FailureKind = "provider"
	KindRejected  FailureKind = "rejected"
	KindTimeout   FailureKind = "timeout"
	KindStorage   FailureKind = "storage"
	KindIntegrity FailureKind = "integrity"
	KindDispatch  FailureKind = "dispatch"
	KindStale     FailureKind = "stale"
)

// Failure is the diagnostic attached to a failed pipeline. Message never
// carries raw provider output.
type Failure struct {
	Stage   string      `json:"stage"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

type StageRecord struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Optional   bool        `json:"optional"`
	Progress   int         `json:"progress"`
	Attempts   int         `json:"attempts,omitempty"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Pipeline is one end-to-end run of a generation request.
type Pipeline struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	UserID      string            `json:"userId,omitempty"`
	Request     GenerationRequest `json:"request"`
	Stages      []StageRecord     `json:"stages"`
	Results     map[string]string `json:"results"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Error       *Failure          `json:"error,omitempty"`
}

// Stage returns the record for name, or nil.
func (p *Pipeline) Stage(name string) *StageRecord {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}

// ActiveStage returns the name of the active stage, or "".
func (p *Pipeline) ActiveStage() string {
	for _, s := range p.Stages {
		if s.Status == StageActive {
			return s.Name
		}
	}
	return ""
}

// Progress is the overall completion percentage derived from stage records.
// It never decreases over the life of a pipeline.
func (p *Pipeline) Progress() int {
	if p.Status == StatusCompleted {
		return 100
	}
	if len(p.Stages) == 0 {
		return 0
	}
	total := 0
	for _, s := range p.Stages {
		switch {
		case s.Status.Done():
			total += 100
		case s.Status == StageActive, s.Status == StageFailed:
			total += s.Progress
		}
	}
	return total / len(p.Stages)
}

// Clone returns a deep copy so callers never share maps or slices with a store.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	out := *p
	out.Request = p.Request.clone()
	out.Stages = make([]StageRecord, len(p.Stages))
	for i, s := range p.Stages {
		s.StartedAt = cloneTime(s.StartedAt)
		s.FinishedAt = cloneTime(s.FinishedAt)
		out.Stages[i] = s
	}
	out.Results = make(map[string]string, len(p.Results))
	for k, v := range p.Results {
		out.Results[k] = v
	}
	out.CompletedAt = cloneTime(p.CompletedAt)
	if p.Error != nil {
		e := *p.Error
		out.Error = &e
	}
	return &out
}

func (p *Pipeline) MarshalJSON() ([]byte, error) {
	type alias Pipeline
	return json.Marshal(struct {
		*alias
		Progress int `json:"progress"`
	}{
		alias:    (*alias)(p),
		Progress: p.Progress(),
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
