// Package storage re-hosts provider artifacts so pipelines reference durable
// URLs instead of short-lived provider links.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"forge/internal/provider"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const name = "storage"

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// Minio publishes artifacts to any S3 compatible bucket.
type Minio struct {
	client     *minio.Client
	bucket     string
	publicBase string
	httpClient *http.Client
}

func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "forge-assets"
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}
	return &Minio{
		client:     client,
		bucket:     bucket,
		publicBase: publicBase,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (m *Minio) Publish(ctx context.Context, a provider.Artifact) (string, error) {
	body, size, contentType, closeFn, err := m.open(ctx, a)
	if err != nil {
		return "", err
	}
	defer closeFn()

	_, err = m.client.PutObject(ctx, m.bucket, a.Key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode > 0 {
			return "", provider.FromStatus(name, resp.StatusCode, err)
		}
		return "", provider.Transient(name, err)
	}
	return m.publicBase + "/" + a.Key, nil
}

func (m *Minio) open(ctx context.Context, a provider.Artifact) (io.Reader, int64, string, func(), error) {
	if len(a.Data) > 0 {
		return bytes.NewReader(a.Data), int64(len(a.Data)), a.ContentType, func() {}, nil
	}
	if a.SourceURL == "" {
		return nil, 0, "", nil, provider.Rejected(name, fmt.Errorf("artifact %s has no content", a.Key))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.SourceURL, nil)
	if err != nil {
		return nil, 0, "", nil, provider.Rejected(name, err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", nil, provider.Classify(name, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, "", nil, provider.FromStatus(name, resp.StatusCode, fmt.Errorf("fetch %s", a.Key))
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return resp.Body, resp.ContentLength, contentType, func() { resp.Body.Close() }, nil
}
