// Package openai implements prompt optimization and image generation on the
// OpenAI API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"forge/internal/provider"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const name = "openai"

const systemPrompt = `You write prompts for a text-to-image model that produces concept art for game assets.
Rewrite the user's description as one paragraph describing a single object, centered, on a plain neutral background,
in a three-quarter view with even studio lighting, so the image can be converted into a 3D model.
Keep every concrete detail the user gave. Answer with the prompt only.`

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	ImageModel string
}

type Client struct {
	client     openai.Client
	chatModel  string
	imageModel string
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := &Client{
		client:     openai.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		imageModel: cfg.ImageModel,
	}
	if c.chatModel == "" {
		c.chatModel = "gpt-4o-mini"
	}
	if c.imageModel == "" {
		c.imageModel = "gpt-image-1"
	}
	return c
}

func (c *Client) Optimize(ctx context.Context, req provider.PromptRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(describe(req)),
		},
		Temperature: openai.Opt(0.4),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", provider.Transient(name, errors.New("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Generate(ctx context.Context, req provider.ImageRequest) (provider.Image, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:  req.Prompt,
		Model:   openai.ImageModel(c.imageModel),
		N:       openai.Int(1),
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: imageQuality(req.Quality),
	})
	if err != nil {
		return provider.Image{}, classify(err)
	}
	if len(resp.Data) == 0 {
		return provider.Image{}, provider.Transient(name, errors.New("no image returned"))
	}
	img := resp.Data[0]
	if img.URL != "" {
		return provider.Image{URL: img.URL, ContentType: "image/png"}, nil
	}
	data, err := base64.StdEncoding.DecodeString(img.B64JSON)
	if err != nil {
		return provider.Image{}, provider.Transient(name, fmt.Errorf("decode image: %w", err))
	}
	return provider.Image{Data: data, ContentType: "image/png"}, nil
}

func imageQuality(q string) openai.ImageGenerateParamsQuality {
	switch q {
	case "fast":
		return openai.ImageGenerateParamsQualityLow
	case "high":
		return openai.ImageGenerateParamsQualityHigh
	default:
		return openai.ImageGenerateParamsQualityMedium
	}
}

func describe(req provider.PromptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s", req.Name)
	switch {
	case req.Type != "" && req.Subtype != "":
		fmt.Fprintf(&b, "\nCategory: %s / %s", req.Type, req.Subtype)
	case req.Type != "":
		fmt.Fprintf(&b, "\nCategory: %s", req.Type)
	case req.Subtype != "":
		fmt.Fprintf(&b, "\nCategory: %s", req.Subtype)
	}
	if req.Style != "" {
		fmt.Fprintf(&b, "\nStyle: %s", req.Style)
	}
	fmt.Fprintf(&b, "\nDescription: %s", req.Description)
	return b.String()
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return provider.FromStatus(name, apiErr.StatusCode, err)
	}
	return provider.Classify(name, err)
}
