// Package queue runs pipelines through asynq so any worker process can pick
// them up, and a crashed run is redelivered and resumed.
package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypePipelineRun = "pipeline:run"
	QueuePipelines  = "pipelines"
)

type PipelineRunPayload struct {
	PipelineID string `json:"pipeline_id"`
}

func NewPipelineRunTask(pipelineID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PipelineRunPayload{PipelineID: pipelineID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePipelineRun, payload), nil
}
