package storage

import (
	"context"
	"fmt"

	"forge/internal/provider"
)

// Passthrough keeps provider URLs as they are. It is used when no object
// storage is configured and cannot publish inline artifacts.
type Passthrough struct{}

func (Passthrough) Publish(_ context.Context, a provider.Artifact) (string, error) {
	if a.SourceURL == "" {
		return "", provider.Rejected(name, fmt.Errorf("artifact %s needs object storage to be published", a.Key))
	}
	return a.SourceURL, nil
}
