package dao

import (
	"encoding/json"
	"fmt"

	"forge/internal/pipeline"
	"forge/internal/server/model"
)

func toRecord(p *pipeline.Pipeline) (*model.Pipeline, error) {
	req, err := json.Marshal(p.Request)
	if err != nil {
		return nil, err
	}
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return nil, err
	}
	results, err := json.Marshal(p.Results)
	if err != nil {
		return nil, err
	}
	failure, err := json.Marshal(p.Error)
	if err != nil {
		return nil, err
	}
	return &model.Pipeline{
		ID:          p.ID,
		UserID:      p.UserID,
		Status:      string(p.Status),
		Request:     req,
		Stages:      stages,
		Results:     results,
		Error:       failure,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		CompletedAt: p.CompletedAt,
	}, nil
}

func fromRecord(rec *model.Pipeline) (*pipeline.Pipeline, error) {
	p := &pipeline.Pipeline{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Status:      pipeline.Status(rec.Status),
		Results:     map[string]string{},
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if err := unmarshalColumn(rec.Request, &p.Request); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if err := unmarshalColumn(rec.Stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("stages: %w", err)
	}
	if err := unmarshalColumn(rec.Results, &p.Results); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	if err := unmarshalColumn(rec.Error, &p.Error); err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	if p.Results == nil {
		p.Results = map[string]string{}
	}
	// the request never serializes its owner
	p.Request.UserID = p.UserID
	return p, nil
}

func unmarshalColumn(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
