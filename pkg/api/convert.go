package api

import (
	"time"

	"forge/internal/pipeline"
)

func Brief(p *pipeline.Pipeline) PipelineBrief {
	return PipelineBrief{
		ID:          p.ID,
		AssetID:     p.Request.AssetID,
		Name:        p.Request.Name,
		Status:      p.Status,
		ActiveStage: p.ActiveStage(),
		Progress:    p.Progress(),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}
