package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ladleio/ladle/pkg/hsds"
)

func TestBuildPromptEmbedsSchemaAndPayload(t *testing.T) {
	payload := []byte("Food pantry open Tuesdays at 45 Elm St")
	prompt := BuildPrompt(payload, "vt_foodbank", "https://example.org/vt")

	assert.Contains(t, prompt, hsds.SchemaJSON)
	assert.Contains(t, prompt, hsds.SchemaVersion)
	assert.Contains(t, prompt, "scraper vt_foodbank")
	assert.Contains(t, prompt, "https://example.org/vt")
	assert.True(t, strings.HasSuffix(prompt, string(payload)), "payload must close the prompt")
}

func TestBuildPromptWithoutProvenance(t *testing.T) {
	prompt := BuildPrompt([]byte("doc"), "", "")
	assert.NotContains(t, prompt, "(scraper")
	assert.True(t, strings.HasSuffix(prompt, "doc"))
}
