package pipeline

import "storyreel/internal/domain"

// Tally aggregates scene micro-states against one stage's completion target.
type Tally struct {
	Total     int
	Completed int
	Failed    int
	Working   int
}

// TallyScenes counts scenes against the target status for a stage. A scene in
// GENERATING or REGENERATING is working; FAILED is failed; anything at or
// beyond the target is completed.
func TallyScenes(scenes []domain.Scene, target domain.SceneStatus) Tally {
	t := Tally{Total: len(scenes)}
	for _, s := range scenes {
		switch {
		case s.Status.AtLeast(target):
			t.Completed++
		case s.Status == domain.SceneStatusFailed:
			t.Failed++
		case s.Status == domain.SceneStatusGenerating || s.Status == domain.SceneStatusRegenerating:
			t.Working++
		}
	}
	return t
}

// AllCompleted reports whether every scene reached the target.
func (t Tally) AllCompleted() bool {
	return t.Total > 0 && t.Completed == t.Total
}

// PartialFailed reports whether at least one scene failed and none are still
// being worked on.
func (t Tally) PartialFailed() bool {
	return t.Failed > 0 && t.Working == 0
}

// DoneDegraded reports completion when failed scenes are deliberately
// excluded from the requirement (resume with skipFailed).
func (t Tally) DoneDegraded() bool {
	return t.Total > 0 && t.Working == 0 && t.Completed+t.Failed == t.Total
}
