package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequest_Normalize(t *testing.T) {
	req := GenerationRequest{
		Description: "  a sword  ",
		Name:        " Iron Sword! ",
		Type:        "weapon ",
		PostProcess: &PostProcessOptions{Enabled: true, TexturePrompt: " rust "},
	}.Normalize()

	assert.Equal(t, "a sword", req.Description)
	assert.Equal(t, "Iron Sword!", req.Name)
	assert.Equal(t, "weapon", req.Type)
	assert.Equal(t, QualityBalanced, req.Quality)
	assert.Equal(t, "iron-sword", req.AssetID)
	assert.Equal(t, "rust", req.PostProcess.TexturePrompt)
	assert.True(t, req.WantsPostProcessing())
}

func TestGenerationRequest_NormalizeKeepsExplicitValues(t *testing.T) {
	req := GenerationRequest{Name: "???", AssetID: "custom_id", Quality: QualityHigh}.Normalize()
	assert.Equal(t, "custom_id", req.AssetID)
	assert.Equal(t, QualityHigh, req.Quality)

	req = GenerationRequest{Name: "???"}.Normalize()
	assert.Equal(t, "asset", req.AssetID)
}

func TestGenerationRequest_Validate(t *testing.T) {
	valid := GenerationRequest{Description: "a sword", Name: "Sword", Type: "weapon"}.Normalize()
	require.NoError(t, valid.Validate())

	cases := map[string]GenerationRequest{
		"description": {Name: "Sword", Type: "weapon"},
		"name":        {Description: "a sword", Type: "weapon"},
		"quality":     {Description: "a sword", Name: "Sword", Type: "weapon", Quality: "max"},
		"assetId":     {Description: "a sword", Name: "Sword", Type: "weapon", AssetID: "-bad"},
		"postProcess.texturePrompt": {Description: "a sword", Name: "Sword", Type: "weapon",
			PostProcess: &PostProcessOptions{TexturePrompt: strings.Repeat("x", 601)}},
	}
	for field, req := range cases {
		err := req.Normalize().Validate()
		require.Error(t, err, field)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), field)
	}
}

func TestGenerationRequest_CategoryIsOptional(t *testing.T) {
	req := GenerationRequest{Description: "A simple bronze sword", Name: "Test Sword", Quality: QualityBalanced}.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "test-sword", req.AssetID)

	req.Type = strings.Repeat("x", 65)
	assert.ErrorIs(t, req.Validate(), ErrValidation)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "dragon-s-bane-2", Slug("  Dragon's Bane #2 "))
	assert.Equal(t, "", Slug("!!!"))
	assert.Len(t, Slug(strings.Repeat("ab ", 100)), 95)
}
