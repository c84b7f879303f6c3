package docker

import (
	"context"
	"errors"
	"testing"

	"forge/internal/provider"

	"github.com/stretchr/testify/assert"
)

func TestCommand(t *testing.T) {
	args := command(provider.PostProcessRequest{ModelURL: "https://cdn/model.glb", Quality: "high"})
	assert.Equal(t, []string{"--input", "https://cdn/model.glb", "--output", outputDir + "/" + outputFile, "--quality", "high"}, args)

	args = command(provider.PostProcessRequest{ModelURL: "m", Quality: "fast", TexturePrompt: "rust"})
	assert.Equal(t, []string{"--texture-prompt", "rust"}, args[len(args)-2:])
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("daemon hiccup")), provider.ErrTransient)
	assert.Equal(t, context.DeadlineExceeded, classify(context.DeadlineExceeded))
}
