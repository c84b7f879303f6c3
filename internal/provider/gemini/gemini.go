// Package gemini implements prompt optimization on Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forge/internal/provider"

	"google.golang.org/genai"
)

const name = "gemini"

const instruction = `Rewrite the following game asset request as a single prompt for an image model.
Describe one object, centered on a plain background, three-quarter view, studio lighting.
Keep every detail from the request and reply with the prompt text only.`

type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Optimize(ctx context.Context, req provider.PromptRequest) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromText(requestText(req)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", classify(err)
	}
	if result == nil {
		return "", provider.Transient(name, errors.New("empty generate response"))
	}
	return strings.TrimSpace(result.Text()), nil
}

func requestText(req provider.PromptRequest) string {
	text := fmt.Sprintf("name: %s\n", req.Name)
	if req.Type != "" {
		text += fmt.Sprintf("type: %s\n", req.Type)
	}
	if req.Subtype != "" {
		text += fmt.Sprintf("subtype: %s\n", req.Subtype)
	}
	if req.Style != "" {
		text += fmt.Sprintf("style: %s\n", req.Style)
	}
	return text + "description: " + req.Description
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.FromStatus(name, apiErr.Code, err)
	}
	return provider.Classify(name, err)
}
