// Package scenario turns the user's chat input into a scenario draft: title,
// shared style descriptor, and one narration/prompt pair per unit.
package scenario

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"storyreel/internal/domain"
	"storyreel/internal/providers"
	"storyreel/internal/providers/genai"
)

// Request describes one scenario generation call.
type Request struct {
	Input      string
	Locale     string
	SlideCount int
	APIKey     string
	RequestID  string
}

// Generator is the contract implemented by scenario providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (*domain.ScenarioDraft, error)
}

// GeminiGenerator produces scenario drafts via the Gemini text API.
type GeminiGenerator struct {
	client *genai.Client
}

// NewGeminiGenerator wraps the shared Gemini client.
func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

// scenarioPayload mirrors the JSON structure the model is instructed to emit.
type scenarioPayload struct {
	Title   string `json:"title"`
	Style   string `json:"style"`
	Opening struct {
		Narration string `json:"narration"`
		Prompt    string `json:"prompt"`
	} `json:"opening"`
	Slides []struct {
		Narration string `json:"narration"`
		Prompt    string `json:"prompt"`
	} `json:"slides"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*domain.ScenarioDraft, error) {
	slideCount := req.SlideCount
	if slideCount <= 0 {
		slideCount = 5
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return syntheticScenario(req.Input, slideCount), nil
	}

	text, err := g.client.GenerateText(ctx, req.APIKey, scenarioPrompt(req.Input, req.Locale, slideCount))
	if err != nil {
		return nil, err
	}

	var payload scenarioPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return nil, providers.NewError(providers.KindTransient, genai.ProviderName, "scenario response was not valid JSON: "+err.Error())
	}
	if len(payload.Slides) == 0 {
		return nil, providers.NewError(providers.KindTransient, genai.ProviderName, "scenario response carried no slides")
	}

	draft := &domain.ScenarioDraft{
		Title: strings.TrimSpace(payload.Title),
		Style: strings.TrimSpace(payload.Style),
	}
	if payload.Opening.Narration != "" {
		draft.Opening = &domain.SceneDraft{
			Narration: strings.TrimSpace(payload.Opening.Narration),
			Prompt:    strings.TrimSpace(payload.Opening.Prompt),
		}
	}
	for _, s := range payload.Slides {
		draft.Slides = append(draft.Slides, domain.SceneDraft{
			Narration: strings.TrimSpace(s.Narration),
			Prompt:    strings.TrimSpace(s.Prompt),
		})
	}
	return draft, nil
}

func scenarioPrompt(input, locale string, slides int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short narrated video scenario with one opening and %d slides.\n", slides)
	if locale != "" {
		fmt.Fprintf(&b, "Narrations must be written in locale %q.\n", locale)
	}
	b.WriteString("Respond with JSON only, shaped as {\"title\",\"style\",\"opening\":{\"narration\",\"prompt\"},\"slides\":[{\"narration\",\"prompt\"}]}.\n")
	b.WriteString("The prompt fields describe the visual for an image generator; keep the style field reusable across all of them.\n\n")
	b.WriteString("Topic: ")
	b.WriteString(input)
	return b.String()
}

// extractJSON strips markdown code fences the model sometimes wraps around
// its JSON answer.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}

func syntheticScenario(input string, slides int) *domain.ScenarioDraft {
	sum := sha256.Sum256([]byte(input))
	tag := fmt.Sprintf("%x", sum[:4])
	draft := &domain.ScenarioDraft{
		Title: fmt.Sprintf("Draft %s", tag),
		Style: "flat illustration, warm palette",
		Opening: &domain.SceneDraft{
			Narration: fmt.Sprintf("An opening about %s.", strings.TrimSpace(input)),
			Prompt:    fmt.Sprintf("title card for %q", strings.TrimSpace(input)),
		},
	}
	for i := 0; i < slides; i++ {
		draft.Slides = append(draft.Slides, domain.SceneDraft{
			Narration: fmt.Sprintf("Part %d of the story about %s.", i+1, strings.TrimSpace(input)),
			Prompt:    fmt.Sprintf("scene %d (%s)", i+1, tag),
		})
	}
	return draft
}

var _ Generator = (*GeminiGenerator)(nil)
