package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// IntegrityError names the stage that reported success without producing a
// required result.
type IntegrityError struct {
	Stage string
	Field string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: stage %s did not produce %s", ErrIntegrity, e.Stage, e.Field)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Finalizer validates the accumulated results and completes the pipeline.
type Finalizer struct {
	rec *recorder
}

// Finalize checks that every completed stage produced its outputs, derives
// the canonical asset reference and marks the pipeline completed in a single
// write. Nothing is written when validation fails.
func (f *Finalizer) Finalize(ctx context.Context, pipelineID string, stages []Stage) (*Pipeline, error) {
	return f.rec.update(ctx, pipelineID, func(p *Pipeline) error {
		if err := verifyResults(p, stages); err != nil {
			return err
		}
		asset := p.Results[ResultProcessedModelURL]
		if asset == "" {
			asset = p.Results[ResultModelURL]
		}
		p.Results[ResultAssetURL] = asset
		p.Results[ResultAssetID] = p.Request.AssetID

		now := f.rec.now()
		p.Status = StatusCompleted
		p.CompletedAt = &now
		return nil
	})
}

func verifyResults(p *Pipeline, stages []Stage) error {
	for _, s := range stages {
		rec := p.Stage(s.Name)
		if rec == nil {
			return fmt.Errorf("%w: stage %s missing from pipeline", ErrIntegrity, s.Name)
		}
		if !rec.Status.Done() {
			return fmt.Errorf("%w: stage %s is %s", ErrIntegrity, s.Name, rec.Status)
		}
		if rec.Status == StageSkipped {
			continue
		}
		for _, key := range s.Outputs {
			if strings.TrimSpace(p.Results[key]) == "" {
				return &IntegrityError{Stage: s.Name, Field: key}
			}
		}
	}
	if p.Results[ResultModelURL] == "" && p.Results[ResultProcessedModelURL] == "" {
		return &IntegrityError{Stage: StageModelConversion, Field: ResultModelURL}
	}
	return nil
}
