// Package tts defines the narration synthesis contract: one call produces
// both the narration audio and its subtitle track.
package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storyreel/internal/providers/genai"
)

// GenerateRequest describes one narration synthesis call.
type GenerateRequest struct {
	Text      string
	Locale    string
	APIKey    string
	RequestID string
}

// Asset carries the synthesized narration and its subtitles.
type Asset struct {
	Audio          []byte
	AudioFormat    string
	Subtitle       []byte
	SubtitleFormat string
	Duration       time.Duration
}

// Generator is the contract implemented by all speech providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// GeminiGenerator synthesizes narration through the Gemini audio modality.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	prompt := req.Text
	if req.Locale != "" {
		prompt = fmt.Sprintf("Narrate in locale %s: %s", req.Locale, req.Text)
	}
	audio, err := g.client.GenerateMedia(ctx, req.APIKey, prompt, "AUDIO", "audio/")
	if err != nil {
		return nil, err
	}
	duration := estimateDuration(req.Text)
	return &Asset{
		Audio:          audio,
		AudioFormat:    "audio/mp3",
		Subtitle:       renderSRT(req.Text, duration),
		SubtitleFormat: "text/plain",
		Duration:       duration,
	}, nil
}

// estimateDuration guesses narration length from word count at a speaking
// rate of roughly 150 words per minute.
func estimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return time.Second
	}
	return time.Duration(float64(words)/150.0*60.0) * time.Second
}

// renderSRT emits a single-cue SRT covering the whole narration. Word-level
// alignment belongs to the provider once it exposes timing metadata.
func renderSRT(text string, duration time.Duration) []byte {
	var b strings.Builder
	b.WriteString("1\n")
	fmt.Fprintf(&b, "00:00:00,000 --> %s\n", srtTimestamp(duration))
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	return []byte(b.String())
}

func srtTimestamp(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

var _ Generator = (*GeminiGenerator)(nil)
