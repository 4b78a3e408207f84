package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadataResponse(t *testing.T) {
	content := `{
	  "title": "Intro to Widgets",
	  "description": "A walkthrough.",
	  "tags": ["widgets", "intro"],
	  "chapters": [{"title": "Opening", "start_seconds": 0}, {"title": "Demo", "start_seconds": 95.5}],
	  "show_notes": "## Notes"
	}`
	payload, err := ParseMetadataResponse(content)
	require.NoError(t, err)

	assert.Equal(t, "Intro to Widgets", payload.Title)
	assert.Equal(t, []string{"widgets", "intro"}, payload.Tags)
	require.Len(t, payload.Chapters, 2)
	assert.InDelta(t, 95.5, payload.Chapters[1].StartSeconds, 0.001)
}

func TestParseMetadataResponseFenced(t *testing.T) {
	content := "```json\n{\"title\": \"Fenced\", \"tags\": []}\n```"
	payload, err := ParseMetadataResponse(content)
	require.NoError(t, err)
	assert.Equal(t, "Fenced", payload.Title)
}

func TestParseMetadataResponseInvalid(t *testing.T) {
	_, err := ParseMetadataResponse("Sorry, I cannot help with that.")
	assert.Error(t, err)
}

func TestGenerationResultUsableOutput(t *testing.T) {
	title := "t"
	transcript := "tr"

	assert.False(t, (&GenerationResult{}).HasUsableOutput())
	assert.True(t, (&GenerationResult{Title: &title}).HasUsableOutput())
	assert.True(t, (&GenerationResult{Transcript: &transcript}).HasUsableOutput())
}
