package app

import (
	"context"
	"fmt"

	"forge/internal/common"
	"forge/internal/provider"
	"forge/internal/provider/ark"
	"forge/internal/provider/docker"
	"forge/internal/provider/gemini"
	"forge/internal/provider/meshy"
	"forge/internal/provider/openai"
	"forge/internal/provider/storage"

	"go.uber.org/zap"
)

// NewProviders builds the provider set selected by the configuration. A
// missing post-processing image only disables that optional stage.
func NewProviders(ctx context.Context, cfg common.Config, logger *zap.Logger) (provider.Set, error) {
	var set provider.Set

	var oa *openai.Client
	openAI := func() (*openai.Client, error) {
		if oa != nil {
			return oa, nil
		}
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		oa = openai.New(openai.Config{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIModel,
			ImageModel: cfg.OpenAIImage,
		})
		return oa, nil
	}

	switch cfg.PromptProvider {
	case "openai":
		c, err := openAI()
		if err != nil {
			return set, err
		}
		set.Prompt = c
	case "gemini":
		if cfg.GeminiKey == "" {
			return set, fmt.Errorf("GEMINI_API_KEY is required")
		}
		c, err := gemini.New(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return set, fmt.Errorf("init gemini: %w", err)
		}
		set.Prompt = c
	default:
		return set, fmt.Errorf("unknown prompt provider %q", cfg.PromptProvider)
	}

	switch cfg.ImageProvider {
	case "openai":
		c, err := openAI()
		if err != nil {
			return set, err
		}
		set.Image = c
	case "ark":
		if cfg.ArkKey == "" {
			return set, fmt.Errorf("ARK_API_KEY is required")
		}
		set.Image = ark.New(cfg.ArkKey, cfg.ArkBaseURL, cfg.ArkImageModel)
	default:
		return set, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}

	if cfg.MeshyKey == "" {
		return set, fmt.Errorf("MESHY_API_KEY is required")
	}
	set.Converter = meshy.New(cfg.MeshyBaseURL, cfg.MeshyKey)

	switch cfg.StorageBackend {
	case "", "passthrough":
		set.Publisher = storage.Passthrough{}
	case "minio":
		m, err := storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.AssetBaseURL,
		})
		if err != nil {
			return set, fmt.Errorf("init minio: %w", err)
		}
		set.Publisher = m
	default:
		return set, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.PostProcessImage == "" {
		logger.Info("post-processing disabled, no image configured")
		return set, nil
	}
	if _, ok := set.Publisher.(storage.Passthrough); ok {
		logger.Warn("post-processing needs an object store for its output, disabled with passthrough storage")
		return set, nil
	}
	engine, err := docker.NewEngine(docker.Config{Host: cfg.DockerHost, Image: cfg.PostProcessImage}, logger)
	if err != nil {
		logger.Warn("post-processing disabled, docker unavailable", zap.Error(err))
		return set, nil
	}
	set.Post = engine
	return set, nil
}
