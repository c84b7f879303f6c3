package gemini

import (
	"testing"

	"forge/internal/provider"

	"github.com/stretchr/testify/assert"
)

func TestRequestText(t *testing.T) {
	assert.Equal(t, "name: Test Sword\ndescription: A simple bronze sword",
		requestText(provider.PromptRequest{Name: "Test Sword", Description: "A simple bronze sword"}))

	assert.Equal(t, "name: Iron Sword\ntype: weapon\nsubtype: sword\ndescription: a sword",
		requestText(provider.PromptRequest{Name: "Iron Sword", Type: "weapon", Subtype: "sword", Description: "a sword"}))
}
