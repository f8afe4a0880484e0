// Package video defines the composition contract: each scene's image and
// narration become one unit clip, and unit clips concatenate into the final
// artifact.
package video

import (
	"context"
	"strings"

	"storyreel/internal/providers/genai"
)

// ComposeRequest describes one scene composition call. The image and audio
// are referenced by blob-store key; the provider reads them itself.
type ComposeRequest struct {
	ImageKey  string
	AudioKey  string
	Narration string
	APIKey    string
	RequestID string
}

// ConcatRequest describes the final composition across all unit clips, in
// scene order.
type ConcatRequest struct {
	ClipKeys  []string
	APIKey    string
	RequestID string
}

// Asset represents a composed video artifact.
type Asset struct {
	Data   []byte
	Format string
}

// Composer is the contract implemented by all video providers.
type Composer interface {
	ComposeScene(ctx context.Context, req ComposeRequest) (*Asset, error)
	ComposeFinal(ctx context.Context, req ConcatRequest) (*Asset, error)
}

// GeminiComposer builds unit clips through the Gemini video modality.
type GeminiComposer struct {
	client *genai.Client
}

func NewGeminiComposer(client *genai.Client) *GeminiComposer {
	return &GeminiComposer{client: client}
}

func (c *GeminiComposer) ComposeScene(ctx context.Context, req ComposeRequest) (*Asset, error) {
	prompt := "Animate the still image at " + req.ImageKey + " under the narration: " + req.Narration
	data, err := c.client.GenerateMedia(ctx, req.APIKey, prompt, "VIDEO", "video/")
	if err != nil {
		return nil, err
	}
	return &Asset{Data: data, Format: "video/mp4"}, nil
}

func (c *GeminiComposer) ComposeFinal(ctx context.Context, req ConcatRequest) (*Asset, error) {
	prompt := "Concatenate clips in order: " + strings.Join(req.ClipKeys, ", ")
	data, err := c.client.GenerateMedia(ctx, req.APIKey, prompt, "VIDEO", "video/")
	if err != nil {
		return nil, err
	}
	return &Asset{Data: data, Format: "video/mp4"}, nil
}

var _ Composer = (*GeminiComposer)(nil)
