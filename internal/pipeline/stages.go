package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"

	"forge/internal/provider"
)

const scratchConversionTask = "conversionTaskId"

// DefaultStages builds the generation chain on top of the given providers.
func DefaultStages(p provider.Set, policies map[string]Policy) []Stage {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return []Stage{
		{
			Name:    StagePromptOptimization,
			Outputs: []string{ResultOptimizedPrompt},
			Policy:  policies[StagePromptOptimization],
			Run:     optimizePrompt(p.Prompt),
		},
		{
			Name:      StageImageGeneration,
			DependsOn: []string{StagePromptOptimization},
			Outputs:   []string{ResultImageURL},
			Policy:    policies[StageImageGeneration],
			Run:       generateImage(p.Image, p.Publisher),
		},
		{
			Name:      StageModelConversion,
			DependsOn: []string{StageImageGeneration},
			Outputs:   []string{ResultModelURL},
			Policy:    policies[StageModelConversion],
			Run:       convertModel(p.Converter, p.Publisher),
		},
		{
			Name:         StagePostProcessing,
			Optional:     true,
			DependsOn:    []string{StageModelConversion},
			Outputs:      []string{ResultProcessedModelURL},
			Precondition: GenerationRequest.WantsPostProcessing,
			Policy:       policies[StagePostProcessing],
			Run:          postProcess(p.Post, p.Publisher),
		},
	}
}

func optimizePrompt(opt provider.PromptOptimizer) StageFunc {
	return func(ctx context.Context, in StageInput) (map[string]string, error) {
		r := in.Request
		prompt, err := opt.Optimize(ctx, provider.PromptRequest{
			Description: r.Description,
			Name:        r.Name,
			Type:        r.Type,
			Subtype:     r.Subtype,
			Style:       r.Style,
			Quality:     string(r.Quality),
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{ResultOptimizedPrompt: prompt}, nil
	}
}

func generateImage(gen provider.ImageGenerator, pub provider.Publisher) StageFunc {
	return func(ctx context.Context, in StageInput) (map[string]string, error) {
		prompt := in.Results[ResultOptimizedPrompt]
		if prompt == "" {
			prompt = in.Request.Description
		}
		img, err := gen.Generate(ctx, provider.ImageRequest{Prompt: prompt, Quality: string(in.Request.Quality)})
		if err != nil {
			return nil, err
		}
		in.Progress(70)
		url, err := pub.Publish(ctx, provider.Artifact{
			Key:         artifactKey(in, "concept"+imageExt(img.ContentType)),
			SourceURL:   img.URL,
			Data:        img.Data,
			ContentType: img.ContentType,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{ResultImageURL: url}, nil
	}
}

func convertModel(conv provider.ModelConverter, pub provider.Publisher) StageFunc {
	return func(ctx context.Context, in StageInput) (map[string]string, error) {
		taskID := in.Scratch[scratchConversionTask]
		if taskID == "" {
			id, err := conv.Submit(ctx, provider.ConvertRequest{
				ImageURL: in.Results[ResultImageURL],
				Quality:  string(in.Request.Quality),
			})
			if err != nil {
				return nil, err
			}
			taskID = id
			in.Scratch[scratchConversionTask] = id
		}
		modelURL, err := conv.Wait(ctx, taskID, func(pct int) {
			// leave headroom for publishing
			in.Progress(pct * 9 / 10)
		})
		if err != nil {
			return nil, err
		}
		url, err := pub.Publish(ctx, provider.Artifact{
			Key:         artifactKey(in, "model.glb"),
			SourceURL:   modelURL,
			ContentType: "model/gltf-binary",
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{ResultModelURL: url}, nil
	}
}

var errNoPostProcessor = errors.New("no post-processor configured")

func postProcess(post provider.PostProcessor, pub provider.Publisher) StageFunc {
	return func(ctx context.Context, in StageInput) (map[string]string, error) {
		if post == nil {
			return nil, provider.Rejected("post-processing", errNoPostProcessor)
		}
		var texture string
		if in.Request.PostProcess != nil {
			texture = in.Request.PostProcess.TexturePrompt
		}
		model, err := post.Process(ctx, provider.PostProcessRequest{
			ModelURL:      in.Results[ResultModelURL],
			TexturePrompt: texture,
			Quality:       string(in.Request.Quality),
		}, in.Progress)
		if err != nil {
			return nil, err
		}
		url, err := pub.Publish(ctx, provider.Artifact{
			Key:         artifactKey(in, "model-processed.glb"),
			SourceURL:   model.URL,
			Data:        model.Data,
			ContentType: model.ContentType,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{ResultProcessedModelURL: url}, nil
	}
}

// artifactKey places artifacts under assets/<assetId>/<pipelineId>/.
func artifactKey(in StageInput, file string) string {
	return path.Join("assets", in.Request.AssetID, in.PipelineID, file)
}

func imageExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/png", "":
		return ".png"
	}
	return fmt.Sprintf(".%s", path.Base(contentType))
}
