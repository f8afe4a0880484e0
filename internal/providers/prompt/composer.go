// Package prompt composes the final text sent to the generation providers
// from a scene's stored prompt, the job-level style descriptor, and any user
// feedback collected for regeneration.
package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/domain"
)

// safePrefix steers the provider away from whatever tripped its content
// filter while preserving the scene's subject.
const safePrefix = "A family-friendly, non-violent illustration. "

// ForScene builds the image prompt for one scene, threading in the shared
// style descriptor and, when regenerating, the user's feedback.
func ForScene(scene *domain.Scene, style string) string {
	var parts []string
	if p := strings.TrimSpace(scene.Prompt); p != "" {
		parts = append(parts, p)
	} else if n := strings.TrimSpace(scene.Narration); n != "" {
		parts = append(parts, n)
	}
	if style = NormalizeStyle(style); style != "" {
		parts = append(parts, "Style: "+style)
	}
	if fb := strings.TrimSpace(scene.Feedback); fb != "" {
		parts = append(parts, "Adjustment requested: "+fb)
	}
	if scene.Type == domain.SceneTypeOpening {
		parts = append(parts, "This is the opening title card.")
	}
	return strings.Join(parts, ". ")
}

// SafeVariant rewrites a prompt for the safe-fallback path after a content
// filter refusal.
func SafeVariant(prompt string) string {
	return safePrefix + prompt
}

// NormalizeStyle canonicalizes a free-form style descriptor: collapsed
// whitespace, title-cased words.
func NormalizeStyle(style string) string {
	style = strings.Join(strings.Fields(style), " ")
	if style == "" {
		return ""
	}
	return cases.Title(language.Und).String(style)
}
