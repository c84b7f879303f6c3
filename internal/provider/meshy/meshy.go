// Package meshy converts concept images into 3D models through the Meshy
// image-to-3D API.
package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"forge/internal/provider"
)

const (
	name           = "meshy"
	DefaultBaseURL = "https://api.meshy.ai"
	taskPath       = "/openapi/v1/image-to-3d"
)

const (
	statusPending    = "PENDING"
	statusInProgress = "IN_PROGRESS"
	statusSucceeded  = "SUCCEEDED"
	statusFailed     = "FAILED"
	statusCanceled   = "CANCELED"
	statusExpired    = "EXPIRED"
)

type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createRequest struct {
	ImageURL        string `json:"image_url"`
	EnablePBR       bool   `json:"enable_pbr"`
	ShouldRemesh    bool   `json:"should_remesh"`
	TargetPolycount int    `json:"target_polycount,omitempty"`
}

type createResponse struct {
	Result string `json:"result"`
}

type task struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ModelURLs struct {
		GLB string `json:"glb"`
	} `json:"model_urls"`
	TaskError struct {
		Message string `json:"message"`
	} `json:"task_error"`
}

func (c *Client) Submit(ctx context.Context, req provider.ConvertRequest) (string, error) {
	body := createRequest{
		ImageURL:     req.ImageURL,
		EnablePBR:    req.Quality != "fast",
		ShouldRemesh: true,
	}
	switch req.Quality {
	case "fast":
		body.TargetPolycount = 10000
	case "high":
		body.TargetPolycount = 100000
	default:
		body.TargetPolycount = 30000
	}
	var out createResponse
	if err := c.do(ctx, http.MethodPost, taskPath, body, &out); err != nil {
		return "", err
	}
	if out.Result == "" {
		return "", provider.Transient(name, errors.New("no task id in response"))
	}
	return out.Result, nil
}

// Wait polls the task until it reaches a final state or ctx ends.
func (c *Client) Wait(ctx context.Context, taskID string, progress provider.ProgressFunc) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var t task
		if err := c.do(ctx, http.MethodGet, taskPath+"/"+taskID, nil, &t); err != nil {
			return "", err
		}
		switch t.Status {
		case statusSucceeded:
			if t.ModelURLs.GLB == "" {
				return "", provider.Rejected(name, fmt.Errorf("task %s finished without a glb model", taskID))
			}
			return t.ModelURLs.GLB, nil
		case statusFailed, statusCanceled, statusExpired:
			msg := t.TaskError.Message
			if msg == "" {
				msg = t.Status
			}
			return "", provider.Rejected(name, fmt.Errorf("task %s: %s", taskID, msg))
		case statusPending, statusInProgress:
			if progress != nil {
				progress(t.Progress)
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Classify(name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return provider.Transient(name, err)
	}
	if resp.StatusCode >= 300 {
		return provider.FromStatus(name, resp.StatusCode, fmt.Errorf("%s %s", method, path))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return provider.Transient(name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
