package repository

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echo-labs/echo/models"
)

func str(s string) *string { return &s }

func TestApplyPatchDisjointFieldsUnion(t *testing.T) {
	meta := &models.VideoMetadata{JobID: uuid.New()}

	duration := 120.5
	first := MetadataPatch{
		DurationSeconds: &duration,
		Resolution:      str("1920x1080"),
		Format:          str("mp4"),
	}
	require.NoError(t, ApplyPatch(meta, first))

	second := MetadataPatch{
		Title:      str("A Talk"),
		Transcript: str("hello world"),
		Tags:       []string{"talk"},
	}
	require.NoError(t, ApplyPatch(meta, second))

	// Union of both patches, nothing overwritten to null.
	require.NotNil(t, meta.DurationSeconds)
	assert.InDelta(t, 120.5, *meta.DurationSeconds, 0.001)
	require.NotNil(t, meta.Resolution)
	assert.Equal(t, "1920x1080", *meta.Resolution)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "A Talk", *meta.Title)
	require.NotNil(t, meta.Transcript)
}

func TestApplyPatchNilNeverClears(t *testing.T) {
	meta := &models.VideoMetadata{JobID: uuid.New()}
	require.NoError(t, ApplyPatch(meta, MetadataPatch{Title: str("Kept")}))

	require.NoError(t, ApplyPatch(meta, MetadataPatch{Description: str("added later")}))

	require.NotNil(t, meta.Title)
	assert.Equal(t, "Kept", *meta.Title)
	require.NotNil(t, meta.Description)
}

func TestApplyPatchMergesSubtitleRefs(t *testing.T) {
	meta := &models.VideoMetadata{JobID: uuid.New()}

	require.NoError(t, ApplyPatch(meta, MetadataPatch{
		SubtitleRefs: map[string]string{"vtt": "a/sub.vtt"},
	}))
	require.NoError(t, ApplyPatch(meta, MetadataPatch{
		SubtitleRefs: map[string]string{"srt": "a/sub.srt"},
	}))

	var refs map[string]string
	require.NoError(t, json.Unmarshal(meta.SubtitleRefs, &refs))
	assert.Equal(t, map[string]string{
		"vtt": "a/sub.vtt",
		"srt": "a/sub.srt",
	}, refs)
}

func TestApplyPatchNonNilOverwrites(t *testing.T) {
	meta := &models.VideoMetadata{JobID: uuid.New()}
	require.NoError(t, ApplyPatch(meta, MetadataPatch{Title: str("draft")}))
	require.NoError(t, ApplyPatch(meta, MetadataPatch{Title: str("final")}))

	require.NotNil(t, meta.Title)
	assert.Equal(t, "final", *meta.Title)
}

func TestMetadataPatchEmpty(t *testing.T) {
	assert.True(t, MetadataPatch{}.Empty())
	assert.False(t, MetadataPatch{Title: str("x")}.Empty())
	assert.False(t, MetadataPatch{SubtitleRefs: map[string]string{}}.Empty())
}
