// Package image defines the preview image generation contract and its Gemini
// implementation.
package image

import (
	"context"

	"storyreel/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt    string
	APIKey    string
	RequestID string
	Locale    string
}

// Asset represents one generated image.
type Asset struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// GeminiGenerator renders scene previews through the Gemini image modality.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	data, err := g.client.GenerateMedia(ctx, req.APIKey, req.Prompt, "IMAGE", "image/")
	if err != nil {
		return nil, err
	}
	return &Asset{Data: data, Format: "image/png"}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
