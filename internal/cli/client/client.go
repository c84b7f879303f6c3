// Package client talks to the forge HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forge/internal/common"
	"forge/internal/pipeline"
	"forge/pkg/api"
)

type Client struct {
	serverURL string
	token     string
	http      *http.Client
}

func New(serverURL, token string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		token:     token,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-success envelope returned by the server.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) Start(ctx context.Context, req pipeline.GenerationRequest) (api.StartPipelineResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return api.StartPipelineResponse{}, err
	}
	return do[api.StartPipelineResponse](ctx, c, http.MethodPost, "/pipeline", bytes.NewReader(body))
}

func (c *Client) Status(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	return do[*pipeline.Pipeline](ctx, c, http.MethodGet, "/pipeline/"+url.PathEscape(id), nil)
}

func (c *Client) List(ctx context.Context, status string, limit int) (api.PipelineList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/pipeline"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return do[api.PipelineList](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) SendRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func ReadResponseBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, fmt.Errorf("response body is nil")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return body, nil
}

func do[T any](ctx context.Context, c *Client, method, path string, body io.Reader) (T, error) {
	var zero T
	resp, err := c.SendRequest(ctx, method, path, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	raw, err := ReadResponseBody(resp)
	if err != nil {
		return zero, err
	}
	var envelope api.Response[T]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return zero, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Code != common.SUCCESS {
		return zero, &APIError{StatusCode: resp.StatusCode, Code: envelope.Code, Message: envelope.Message}
	}
	return envelope.Data, nil
}
