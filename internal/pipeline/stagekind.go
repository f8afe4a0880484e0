package pipeline

import "storyreel/internal/domain"

// StageKind names one generation-heavy stage of the pipeline as requested by
// callers ("start stage X"). Each kind maps to a generating stage, its
// terminal stages, and the scene status that counts as completion for it.
type StageKind string

const (
	StageKindPreviews StageKind = "previews"
	StageKindTTS      StageKind = "tts"
	StageKindVideo    StageKind = "video"
)

// ParseStageKind validates a caller-supplied stage name.
func ParseStageKind(s string) (StageKind, bool) {
	switch StageKind(s) {
	case StageKindPreviews, StageKindTTS, StageKindVideo:
		return StageKind(s), true
	}
	return "", false
}

func (k StageKind) generatingStage() domain.Stage {
	switch k {
	case StageKindPreviews:
		return domain.StagePreviewsGenerating
	case StageKindTTS:
		return domain.StageTTSGenerating
	default:
		return domain.StageVideoGenerating
	}
}

func (k StageKind) doneStage() domain.Stage {
	switch k {
	case StageKindPreviews:
		return domain.StagePreviewsDone
	case StageKindTTS:
		return domain.StageTTSDone
	default:
		return domain.StageVideoDone
	}
}

func (k StageKind) failedStage() domain.Stage {
	switch k {
	case StageKindPreviews:
		return domain.StagePreviewsPartialFailed
	case StageKindTTS:
		return domain.StageTTSPartialFailed
	default:
		return domain.StageVideoFailed
	}
}

// targetStatus is the scene status that marks a unit done for this stage.
func (k StageKind) targetStatus() domain.SceneStatus {
	switch k {
	case StageKindPreviews:
		return domain.SceneStatusMediaReady
	case StageKindTTS:
		return domain.SceneStatusTTSReady
	default:
		return domain.SceneStatusCompleted
	}
}

// kindFromScenes infers the stage a regenerating job returns to from
// persisted scene state: any audio evidence means the narration stage
// already ran. Regeneration is only reachable from the previews and tts
// stage variants, so those are the only candidates.
func kindFromScenes(scenes []domain.Scene) StageKind {
	for _, s := range scenes {
		if s.AudioURL != "" || s.Status.AtLeast(domain.SceneStatusTTSReady) {
			return StageKindTTS
		}
	}
	return StageKindPreviews
}

// kindForStage maps a job's current stage to the stage kind it belongs to.
// Stages before scene creation have no kind.
func kindForStage(s domain.Stage) (StageKind, bool) {
	switch s {
	case domain.StagePreviewsGenerating, domain.StagePreviewsDone, domain.StagePreviewsPartialFailed:
		return StageKindPreviews, true
	case domain.StageTTSGenerating, domain.StageTTSDone, domain.StageTTSPartialFailed:
		return StageKindTTS, true
	case domain.StageVideoGenerating, domain.StageVideoDone, domain.StageVideoFailed:
		return StageKindVideo, true
	}
	return "", false
}
