package assistant

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
)

// Transcribe runs a recorded voice note through the hosted Whisper model
// and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if filename == "" {
		filename = "voice-note.wav"
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(c.cfg.AudioModel),
		File:  openai.File(audio, filename, contentTypeFor(filename)),
	})
	if err != nil {
		c.metrics.IncProviderError("transcribe")
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func contentTypeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(filename, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(filename, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(filename, ".webm"):
		return "audio/webm"
	default:
		return "audio/wav"
	}
}
