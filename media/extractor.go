package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/echo-labs/echo/config"
)

// TechInfo is the technical metadata extracted from a source video.
type TechInfo struct {
	DurationSeconds float64
	Resolution      string // e.g. "1920x1080", empty if no video stream found
	Format          string // container format name as reported by ffprobe
}

// Extractor is the media-extraction capability: audio track and technical
// metadata out of a video file. All work happens on local temp files; the
// caller owns cleanup of returned paths.
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	Probe(ctx context.Context, videoPath string) (*TechInfo, error)
	GrabFrame(ctx context.Context, videoPath string, atSeconds float64) (string, error)
}

type FFmpegExtractor struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

func NewFFmpegExtractor(cfg *config.MediaConfig) *FFmpegExtractor {
	return &FFmpegExtractor{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		tempDir:     cfg.TempDir,
	}
}

// ExtractAudio writes a 16 kHz mono wav next to the source, the input format
// the transcription backend expects.
func (e *FFmpegExtractor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	audioPath := filepath.Join(e.tempDir, base+".wav")

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(audioPath)
		return "", fmt.Errorf("ffmpeg extraction failed: %w: %s", err, tail(stderr.String()))
	}
	return audioPath, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
		Duration  string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func (e *FFmpegExtractor) Probe(ctx context.Context, videoPath string) (*TechInfo, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, tail(stderr.String()))
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return info, nil
}

func parseProbeOutput(raw []byte) (*TechInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &TechInfo{Format: out.Format.FormatName}

	if out.Format.Duration != "" {
		fmt.Sscanf(out.Format.Duration, "%f", &info.DurationSeconds)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "video" {
			continue
		}
		if stream.Width > 0 && stream.Height > 0 {
			info.Resolution = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
		}
		// Fall back to the stream duration when the container has none.
		if info.DurationSeconds == 0 && stream.Duration != "" {
			fmt.Sscanf(stream.Duration, "%f", &info.DurationSeconds)
		}
		break
	}

	return info, nil
}

// GrabFrame renders a single jpeg frame at the given offset, used for the
// thumbnail sub-step.
func (e *FFmpegExtractor) GrabFrame(ctx context.Context, videoPath string, atSeconds float64) (string, error) {
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	framePath := filepath.Join(e.tempDir, base+"_thumb.jpg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.2f", atSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "3",
		framePath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(framePath)
		return "", fmt.Errorf("ffmpeg frame grab failed: %w: %s", err, tail(stderr.String()))
	}
	return framePath, nil
}

// tail keeps error output short enough for a log line.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return "..." + s[len(s)-300:]
	}
	return s
}
