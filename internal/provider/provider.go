// Package provider defines the external services a pipeline stage calls and
// how their failures are classified for the retry policy.
package provider

import (
	"context"
)

type PromptRequest struct {
	Description string
	Name        string
	Type        string
	Subtype     string
	Style       string
	Quality     string
}

type PromptOptimizer interface {
	Optimize(ctx context.Context, req PromptRequest) (string, error)
}

type ImageRequest struct {
	Prompt  string
	Quality string
}

// Image is a generated concept image. Exactly one of URL or Data is set.
type Image struct {
	URL         string
	Data        []byte
	ContentType string
}

type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (Image, error)
}

type ConvertRequest struct {
	ImageURL string
	Quality  string
}

// ProgressFunc receives provider-reported completion in percent.
type ProgressFunc func(percent int)

// ModelConverter turns an image into a 3D model. Conversion is long running,
// so it is split into Submit and Wait and a retried attempt can keep polling
// a task that was already accepted.
type ModelConverter interface {
	Submit(ctx context.Context, req ConvertRequest) (taskID string, err error)
	Wait(ctx context.Context, taskID string, progress ProgressFunc) (modelURL string, err error)
}

type PostProcessRequest struct {
	ModelURL      string
	TexturePrompt string
	Quality       string
}

// Model is a processed 3D model. Exactly one of URL or Data is set.
type Model struct {
	URL         string
	Data        []byte
	ContentType string
}

type PostProcessor interface {
	Process(ctx context.Context, req PostProcessRequest, progress ProgressFunc) (Model, error)
}

// Artifact is a provider output that should be re-hosted under Key.
type Artifact struct {
	Key         string
	SourceURL   string
	Data        []byte
	ContentType string
}

// Publisher turns provider artifacts into durable references.
type Publisher interface {
	Publish(ctx context.Context, a Artifact) (string, error)
}

// Set groups the clients one pipeline needs.
type Set struct {
	Prompt    PromptOptimizer
	Image     ImageGenerator
	Converter ModelConverter
	Post      PostProcessor
	Publisher Publisher
}
