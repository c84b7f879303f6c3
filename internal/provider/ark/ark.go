// Package ark generates concept images with Seedream on Volcengine Ark.
package ark

import (
	"context"
	"errors"
	"fmt"

	"forge/internal/provider"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

const name = "ark"

type Client struct {
	client *arkruntime.Client
	model  string
}

func New(apiKey, baseURL, imageModel string) *Client {
	var opts []arkruntime.ConfigOption
	if baseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(baseURL))
	}
	if imageModel == "" {
		imageModel = "doubao-seedream-4-0-250828"
	}
	return &Client{
		client: arkruntime.NewClientWithApiKey(apiKey, opts...),
		model:  imageModel,
	}
}

func (c *Client) Generate(ctx context.Context, req provider.ImageRequest) (provider.Image, error) {
	resp, err := c.client.GenerateImages(ctx, model.GenerateImagesRequest{
		Model:          c.model,
		Prompt:         req.Prompt,
		Size:           volcengine.String(size(req.Quality)),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	})
	if err != nil {
		return provider.Image{}, classify(err)
	}
	if resp.Error != nil {
		return provider.Image{}, provider.Rejected(name, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message))
	}
	for _, img := range resp.Data {
		if img.Url != nil && *img.Url != "" {
			return provider.Image{URL: *img.Url, ContentType: "image/jpeg"}, nil
		}
	}
	return provider.Image{}, provider.Transient(name, errors.New("no image returned"))
}

func size(quality string) string {
	switch quality {
	case "fast":
		return "1K"
	case "high":
		return "4K"
	default:
		return "2K"
	}
}

func classify(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return provider.FromStatus(name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *model.RequestError
	if errors.As(err, &reqErr) {
		return provider.FromStatus(name, reqErr.HTTPStatusCode, err)
	}
	return provider.Classify(name, err)
}
