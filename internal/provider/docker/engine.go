// Package docker runs model post-processing (remeshing, texturing, LOD
// baking) inside a container so the toolchain stays out of the service image.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"forge/internal/provider"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const (
	name       = "docker"
	outputDir  = "/out"
	outputFile = "model.glb"
)

type Config struct {
	Host    string
	Image   string
	WorkDir string
}

type Engine struct {
	cli     *client.Client
	image   string
	workDir string
	logger  *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	host := cfg.Host
	if host == "" {
		host = "unix:///var/run/docker.sock"
	}
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Engine{cli: cli, image: cfg.Image, workDir: workDir, logger: logger}, nil
}

// Process runs the post-processing image against the model URL and returns
// the file the container wrote to /out/model.glb.
func (d *Engine) Process(ctx context.Context, req provider.PostProcessRequest, progress provider.ProgressFunc) (provider.Model, error) {
	dir, err := os.MkdirTemp(d.workDir, "forge-post-")
	if err != nil {
		return provider.Model{}, provider.Transient(name, err)
	}
	defer os.RemoveAll(dir)

	resp, err := d.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image: d.image,
			Cmd:   command(req),
		},
		&container.HostConfig{
			Binds: []string{dir + ":" + outputDir},
		},
		nil, nil, "",
	)
	if err != nil {
		return provider.Model{}, classify(err)
	}
	containerID := resp.ID

	defer func() {
		// ctx may already be done when the stage timed out
		if err := d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("fail to remove container", zap.String("container_id", containerID), zap.Error(err))
		}
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return provider.Model{}, classify(err)
	}
	if progress != nil {
		progress(10)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return provider.Model{}, classify(err)
		}
	case status := <-statusCh:
		d.logger.Info("post-processing container exited",
			zap.String("container_id", containerID),
			zap.Int64("exit_code", status.StatusCode))
		if status.StatusCode != 0 {
			return provider.Model{}, provider.Rejected(name, fmt.Errorf("exit status %d: %s", status.StatusCode, d.stderr(ctx, containerID)))
		}
	}
	if progress != nil {
		progress(90)
	}

	data, err := os.ReadFile(filepath.Join(dir, outputFile))
	if err != nil {
		return provider.Model{}, provider.Rejected(name, fmt.Errorf("container produced no model: %w", err))
	}
	return provider.Model{Data: data, ContentType: "model/gltf-binary"}, nil
}

func command(req provider.PostProcessRequest) []string {
	cmd := []string{"--input", req.ModelURL, "--output", outputDir + "/" + outputFile, "--quality", req.Quality}
	if req.TexturePrompt != "" {
		cmd = append(cmd, "--texture-prompt", req.TexturePrompt)
	}
	return cmd
}

// stderr returns the tail of the container's error output for diagnostics.
func (d *Engine) stderr(ctx context.Context, containerID string) string {
	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: false,
		ShowStderr: true,
		Tail:       "20",
	})
	if err != nil {
		return "logs unavailable"
	}
	defer out.Close()

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	if _, err := stdcopy.StdCopy(stdout, stderr, out); err != nil {
		return "logs unavailable"
	}
	return strings.TrimSpace(stderr.String())
}

func classify(err error) error {
	switch {
	case client.IsErrNotFound(err):
		return provider.Rejected(name, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return provider.Transient(name, err)
	}
}
