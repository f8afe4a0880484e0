package domain

import "time"

// SceneType distinguishes the single opening unit from ordinary slides.
type SceneType string

const (
	SceneTypeOpening SceneType = "OPENING"
	SceneTypeSlide   SceneType = "SLIDE"
)

// SceneStatus is the per-scene micro-state, independent of sibling scenes.
type SceneStatus string

const (
	SceneStatusPending      SceneStatus = "PENDING"
	SceneStatusGenerating   SceneStatus = "GENERATING"
	SceneStatusMediaReady   SceneStatus = "MEDIA_READY"
	SceneStatusTTSReady     SceneStatus = "TTS_READY"
	SceneStatusCompleted    SceneStatus = "COMPLETED"
	SceneStatusFailed       SceneStatus = "FAILED"
	SceneStatusRegenerating SceneStatus = "REGENERATING"
)

// sceneStatusRank orders the forward progression of a scene so that "has the
// scene reached status X" is a single comparison. FAILED and REGENERATING sit
// outside the forward chain.
var sceneStatusRank = map[SceneStatus]int{
	SceneStatusPending:    0,
	SceneStatusGenerating: 1,
	SceneStatusMediaReady: 2,
	SceneStatusTTSReady:   3,
	SceneStatusCompleted:  4,
}

// AtLeast reports whether the status has progressed to target or beyond.
// FAILED and REGENERATING never satisfy any target.
func (s SceneStatus) AtLeast(target SceneStatus) bool {
	rank, ok := sceneStatusRank[s]
	if !ok {
		return false
	}
	return rank >= sceneStatusRank[target]
}

// Scene is one independently generatable unit belonging to exactly one job.
type Scene struct {
	ID           string
	JobID        string
	Order        int
	Type         SceneType
	Narration    string
	Prompt       string
	ImageURL     string
	AudioURL     string
	SubtitleURL  string
	VideoURL     string
	Status       SceneStatus
	RetryCount   int
	ErrorMessage string
	Feedback     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
