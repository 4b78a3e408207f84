package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/echo-labs/echo/config"
)

// VideoMeta is what the external platform needs alongside the video itself.
type VideoMeta struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Publisher is the publishing capability: a finished video plus metadata in,
// the platform's video identifier out. Not exercised by the core pipeline;
// consumed by the explicit downstream publish step.
type Publisher interface {
	Publish(ctx context.Context, videoURL string, meta VideoMeta) (externalID string, externalURL string, err error)
}

// HTTPPublisher posts to a platform ingest endpoint that accepts a source URL
// and pulls the video itself, returning the assigned id.
type HTTPPublisher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPPublisher(cfg *config.PublishConfig, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	SourceURL string    `json:"source_url"`
	Meta      VideoMeta `json:"metadata"`
}

type publishResponse struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, videoURL string, meta VideoMeta) (string, string, error) {
	body, err := json.Marshal(publishRequest{SourceURL: videoURL, Meta: meta})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read publish response: %w", err)
	}

	var parsed publishResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", "", fmt.Errorf("decode publish response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", "", fmt.Errorf("platform rejected publish: %s", msg)
	}
	if parsed.VideoID == "" {
		return "", "", fmt.Errorf("platform returned no video id")
	}
	return parsed.VideoID, parsed.URL, nil
}
