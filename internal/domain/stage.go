package domain

// Stage enumerates job lifecycle states across the generation pipeline.
type Stage string

const (
	StageChatting              Stage = "CHATTING"
	StageScenarioGenerating    Stage = "SCENARIO_GENERATING"
	StageScenarioDone          Stage = "SCENARIO_DONE"
	StageScenarioFailed        Stage = "SCENARIO_FAILED"
	StagePreviewsGenerating    Stage = "PREVIEWS_GENERATING"
	StagePreviewsDone          Stage = "PREVIEWS_DONE"
	StagePreviewsPartialFailed Stage = "PREVIEWS_PARTIAL_FAILED"
	StageTTSGenerating         Stage = "TTS_GENERATING"
	StageTTSDone               Stage = "TTS_DONE"
	StageTTSPartialFailed      Stage = "TTS_PARTIAL_FAILED"
	StageSceneRegenerating     Stage = "SCENE_REGENERATING"
	StageVideoGenerating       Stage = "VIDEO_GENERATING"
	StageVideoDone             Stage = "VIDEO_DONE"
	StageVideoFailed           Stage = "VIDEO_FAILED"
)

// stageTransitions is the single source of truth for legal stage changes.
// Every mutation of Job.Stage must pass through CanTransition; forward edges
// are one-directional except the documented failure->retry edges.
var stageTransitions = map[Stage][]Stage{
	StageChatting:              {StageScenarioGenerating},
	StageScenarioGenerating:    {StageScenarioDone, StageScenarioFailed},
	StageScenarioDone:          {StagePreviewsGenerating},
	StagePreviewsGenerating:    {StagePreviewsDone, StagePreviewsPartialFailed},
	StagePreviewsPartialFailed: {StagePreviewsGenerating, StageSceneRegenerating},
	StagePreviewsDone:          {StageTTSGenerating, StageSceneRegenerating},
	StageTTSGenerating:         {StageTTSDone, StageTTSPartialFailed},
	StageTTSPartialFailed:      {StageTTSGenerating, StageSceneRegenerating},
	StageTTSDone:               {StageVideoGenerating, StageSceneRegenerating},
	StageSceneRegenerating:     {StagePreviewsDone, StagePreviewsPartialFailed, StageTTSPartialFailed, StageTTSDone},
	StageVideoGenerating:       {StageVideoDone, StageVideoFailed},
	StageVideoFailed:           {StageVideoGenerating},
}

var generatingStages = map[Stage]struct{}{
	StageScenarioGenerating: {},
	StagePreviewsGenerating: {},
	StageTTSGenerating:      {},
	StageSceneRegenerating:  {},
	StageVideoGenerating:    {},
}

// CanTransition reports whether moving from one stage to another is legal.
func CanTransition(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsGenerating reports whether the stage actively processes scenes. A user
// may hold at most one job in a generating stage at a time.
func (s Stage) IsGenerating() bool {
	_, ok := generatingStages[s]
	return ok
}

// IsTerminal reports whether no further stage transition is possible.
func (s Stage) IsTerminal() bool {
	return len(stageTransitions[s]) == 0
}

// GeneratingStages returns the stages counted against the single-flight guard.
func GeneratingStages() []Stage {
	out := make([]Stage, 0, len(generatingStages))
	for s := range generatingStages {
		out = append(out, s)
	}
	return out
}

// AllStages returns every known stage, sources plus sinks.
func AllStages() []Stage {
	seen := map[Stage]struct{}{}
	var out []Stage
	add := func(s Stage) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for from, tos := range stageTransitions {
		add(from)
		for _, to := range tos {
			add(to)
		}
	}
	return out
}
