package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/models"
)

// GenerationResult is the bundle an AI run produces. Every field is
// independently optional: a nil field means that sub-task failed or was not
// attempted, and the reason is recorded in FieldErrors under the field name.
type GenerationResult struct {
	Transcript  *string
	Subtitles   map[string][]byte // subtitle format ("vtt", "srt") -> file contents
	Title       *string
	Description *string
	Tags        []string
	Chapters    []models.Chapter
	ShowNotes   *string

	FieldErrors map[string]string
}

// HasUsableOutput reports whether the run produced the minimum the pipeline
// counts as a successful generation stage.
func (r *GenerationResult) HasUsableOutput() bool {
	return r.Transcript != nil || r.Title != nil
}

// Generator is the AI capability: audio in, metadata bundle out.
type Generator interface {
	Generate(ctx context.Context, audioPath string) (*GenerationResult, error)
}

type OpenAIGenerator struct {
	client             *openai.Client
	transcriptionModel string
	chatModel          string
	logger             *logrus.Logger
}

func NewOpenAIGenerator(cfg *config.OpenAIConfig, logger *logrus.Logger) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:             openai.NewClientWithConfig(clientConfig),
		transcriptionModel: cfg.TranscriptionModel,
		chatModel:          cfg.ChatModel,
		logger:             logger,
	}
}

// Generate runs transcription first and metadata generation on top of the
// transcript. Sub-task failures are recorded per field and do not abort the
// bundle; only a run with no usable output at all is the caller's problem.
func (g *OpenAIGenerator) Generate(ctx context.Context, audioPath string) (*GenerationResult, error) {
	result := &GenerationResult{
		Subtitles:   map[string][]byte{},
		FieldErrors: map[string]string{},
	}

	transcript, err := g.transcribe(ctx, audioPath, openai.AudioResponseFormatText)
	if err != nil {
		result.FieldErrors["transcript"] = err.Error()
		g.logger.WithError(err).Warn("transcription failed")
	} else {
		result.Transcript = &transcript
	}

	for _, format := range []openai.AudioResponseFormat{openai.AudioResponseFormatVTT, openai.AudioResponseFormatSRT} {
		sub, err := g.transcribe(ctx, audioPath, format)
		if err != nil {
			result.FieldErrors["subtitles_"+string(format)] = err.Error()
			g.logger.WithError(err).WithField("format", format).Warn("subtitle generation failed")
			continue
		}
		result.Subtitles[string(format)] = []byte(sub)
	}

	// Metadata generation depends on having a transcript to reason about.
	if result.Transcript == nil {
		result.FieldErrors["metadata"] = "skipped: no transcript available"
		return result, nil
	}

	g.generateMetadata(ctx, *result.Transcript, result)
	return result, nil
}

func (g *OpenAIGenerator) transcribe(ctx context.Context, audioPath string, format openai.AudioResponseFormat) (string, error) {
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.transcriptionModel,
		FilePath: audioPath,
		Format:   format,
	})
	if err != nil {
		return "", fmt.Errorf("transcription (%s) failed: %w", format, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("transcription (%s) returned empty output", format)
	}
	return resp.Text, nil
}

// MetadataPayload is the JSON shape the chat model is asked to return.
type MetadataPayload struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	Chapters    []models.Chapter `json:"chapters"`
	ShowNotes   string           `json:"show_notes"`
}

const metadataPrompt = `You are an assistant that writes publishing metadata for videos.
Given the transcript below, respond with a single JSON object with exactly these keys:
"title" (concise, max 100 chars), "description" (2-4 sentences), "tags" (5-10 short strings),
"chapters" (array of {"title", "start_seconds"} derived from topic changes),
"show_notes" (markdown summary with key takeaways).
Respond with JSON only, no surrounding text.

Transcript:
%s`

func (g *OpenAIGenerator) generateMetadata(ctx context.Context, transcript string, result *GenerationResult) {
	// Long transcripts get truncated rather than rejected.
	if len(transcript) > 24000 {
		transcript = transcript[:24000] + "..."
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(metadataPrompt, transcript),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		result.FieldErrors["metadata"] = err.Error()
		g.logger.WithError(err).Warn("metadata generation failed")
		return
	}
	if len(resp.Choices) == 0 {
		result.FieldErrors["metadata"] = "no completion choices returned"
		return
	}

	payload, err := ParseMetadataResponse(resp.Choices[0].Message.Content)
	if err != nil {
		result.FieldErrors["metadata"] = err.Error()
		g.logger.WithError(err).Warn("metadata response unparseable")
		return
	}

	if payload.Title != "" {
		result.Title = &payload.Title
	}
	if payload.Description != "" {
		result.Description = &payload.Description
	}
	if len(payload.Tags) > 0 {
		result.Tags = payload.Tags
	}
	if len(payload.Chapters) > 0 {
		result.Chapters = payload.Chapters
	}
	if payload.ShowNotes != "" {
		result.ShowNotes = &payload.ShowNotes
	}
}

// ParseMetadataResponse decodes the model's JSON answer, tolerating fenced
// code blocks some models wrap around it.
func ParseMetadataResponse(content string) (*MetadataPayload, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var payload MetadataPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	return &payload, nil
}
