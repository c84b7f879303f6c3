package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StageInput is what a stage sees of its pipeline. Results is a snapshot of
// upstream outputs. Scratch survives across retry attempts of one stage run.
type StageInput struct {
	PipelineID string
	Request    GenerationRequest
	Results    map[string]string
	Scratch    map[string]string
	Progress   func(percent int)
}

// StageFunc performs one attempt of a stage and returns its outputs.
type StageFunc func(ctx context.Context, in StageInput) (map[string]string, error)

// Policy bounds a stage. Timeout covers every attempt together.
type Policy struct {
	Timeout         time.Duration             `yaml:"timeout"`
	MaxRetries      int                       `yaml:"maxRetries"`
	InitialBackoff  time.Duration             `yaml:"initialBackoff"`
	MaxBackoff      time.Duration             `yaml:"maxBackoff"`
	QualityTimeouts map[Quality]time.Duration `yaml:"qualityTimeouts"`
}

// For returns the policy with any quality specific timeout applied.
func (p Policy) For(q Quality) Policy {
	if d, ok := p.QualityTimeouts[q]; ok && d > 0 {
		p.Timeout = d
	}
	return p
}

// Longest is the largest timeout across every quality tier.
func (p Policy) Longest() time.Duration {
	longest := p.Timeout
	for _, d := range p.QualityTimeouts {
		longest = max(longest, d)
	}
	return longest
}

type Stage struct {
	Name      string
	Optional  bool
	DependsOn []string
	// Outputs are the result keys the stage must produce.
	Outputs []string
	// Precondition decides whether an optional stage runs at all.
	Precondition func(GenerationRequest) bool
	Policy       Policy
	Run          StageFunc
}

// Applies reports whether the stage should execute for req.
func (s Stage) Applies(req GenerationRequest) bool {
	if !s.Optional || s.Precondition == nil {
		return true
	}
	return s.Precondition(req)
}

// DefaultPolicies holds the built-in stage bounds.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		StagePromptOptimization: {
			Timeout:        60 * time.Second,
			MaxRetries:     2,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
		StageImageGeneration: {
			Timeout:        3 * time.Minute,
			MaxRetries:     2,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		StageModelConversion: {
			Timeout:        20 * time.Minute,
			MaxRetries:     1,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     time.Minute,
			QualityTimeouts: map[Quality]time.Duration{
				QualityHigh: 30 * time.Minute,
			},
		},
		StagePostProcessing: {
			Timeout:        10 * time.Minute,
			MaxRetries:     1,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     time.Minute,
		},
	}
}

// LoadPolicies reads stage overrides from a YAML file keyed by stage name and
// merges them over the defaults. Zero fields keep the default value.
func LoadPolicies(path string) (map[string]Policy, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage policies: %w", err)
	}
	var overrides map[string]Policy
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse stage policies: %w", err)
	}
	for stage, o := range overrides {
		p, ok := policies[stage]
		if !ok {
			return nil, fmt.Errorf("stage policies: unknown stage %q", stage)
		}
		if o.Timeout > 0 {
			p.Timeout = o.Timeout
		}
		if o.MaxRetries > 0 {
			p.MaxRetries = o.MaxRetries
		}
		if o.InitialBackoff > 0 {
			p.InitialBackoff = o.InitialBackoff
		}
		if o.MaxBackoff > 0 {
			p.MaxBackoff = o.MaxBackoff
		}
		for q, d := range o.QualityTimeouts {
			if p.QualityTimeouts == nil {
				p.QualityTimeouts = make(map[Quality]time.Duration)
			}
			p.QualityTimeouts[q] = d
		}
		policies[stage] = p
	}
	return policies, nil
}
