// Package api holds the wire types shared by the server and forgectl.
package api

import "forge/internal/pipeline"

// Response is the envelope every endpoint answers with.
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type StartPipelineResponse struct {
	PipelineID string          `json:"pipelineId"`
	Status     pipeline.Status `json:"status"`
	Message    string          `json:"message"`
}

type PipelineBrief struct {
	ID          string          `json:"id"`
	AssetID     string          `json:"assetId"`
	Name        string          `json:"name"`
	Status      pipeline.Status `json:"status"`
	ActiveStage string          `json:"activeStage,omitempty"`
	Progress    int             `json:"progress"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type PipelineList struct {
	Pipelines []PipelineBrief `json:"pipelines"`
}
