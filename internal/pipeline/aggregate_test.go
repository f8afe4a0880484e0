package pipeline

import (
	"testing"

	"storyreel/internal/domain"
)

func scenesWith(statuses ...domain.SceneStatus) []domain.Scene {
	out := make([]domain.Scene, len(statuses))
	for i, st := range statuses {
		out[i] = domain.Scene{ID: string(rune('a' + i)), Status: st}
	}
	return out
}

func TestTallyScenes(t *testing.T) {
	tests := []struct {
		name     string
		statuses []domain.SceneStatus
		target   domain.SceneStatus
		want     Tally
	}{
		{
			name:     "all at target",
			statuses: []domain.SceneStatus{domain.SceneStatusTTSReady, domain.SceneStatusCompleted},
			target:   domain.SceneStatusTTSReady,
			want:     Tally{Total: 2, Completed: 2},
		},
		{
			name:     "mixed",
			statuses: []domain.SceneStatus{domain.SceneStatusMediaReady, domain.SceneStatusFailed, domain.SceneStatusGenerating},
			target:   domain.SceneStatusTTSReady,
			want:     Tally{Total: 3, Failed: 1, Working: 1},
		},
		{
			name:     "regenerating counts as working",
			statuses: []domain.SceneStatus{domain.SceneStatusRegenerating, domain.SceneStatusMediaReady},
			target:   domain.SceneStatusMediaReady,
			want:     Tally{Total: 2, Completed: 1, Working: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TallyScenes(scenesWith(tt.statuses...), tt.target); got != tt.want {
				t.Fatalf("TallyScenes() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTallyPredicates(t *testing.T) {
	all := Tally{Total: 3, Completed: 3}
	if !all.AllCompleted() || all.PartialFailed() {
		t.Errorf("fully completed tally misclassified: %+v", all)
	}

	partial := Tally{Total: 3, Completed: 2, Failed: 1}
	if partial.AllCompleted() || !partial.PartialFailed() {
		t.Errorf("partial-failure tally misclassified: %+v", partial)
	}
	if !partial.DoneDegraded() {
		t.Errorf("settled partial failure should count as degraded-done: %+v", partial)
	}

	working := Tally{Total: 3, Completed: 1, Failed: 1, Working: 1}
	if working.PartialFailed() || working.DoneDegraded() {
		t.Errorf("in-flight tally misclassified as settled: %+v", working)
	}

	empty := Tally{}
	if empty.AllCompleted() || empty.DoneDegraded() {
		t.Errorf("empty tally misclassified: %+v", empty)
	}
}

func TestParseStageKind(t *testing.T) {
	for _, valid := range []string{"previews", "tts", "video"} {
		if _, ok := ParseStageKind(valid); !ok {
			t.Errorf("ParseStageKind(%q) rejected a valid kind", valid)
		}
	}
	for _, invalid := range []string{"", "scenario", "TTS", "final"} {
		if _, ok := ParseStageKind(invalid); ok {
			t.Errorf("ParseStageKind(%q) accepted an invalid kind", invalid)
		}
	}
}

func TestStageKindMapping(t *testing.T) {
	tests := []struct {
		kind   StageKind
		gen    domain.Stage
		done   domain.Stage
		failed domain.Stage
		target domain.SceneStatus
	}{
		{StageKindPreviews, domain.StagePreviewsGenerating, domain.StagePreviewsDone, domain.StagePreviewsPartialFailed, domain.SceneStatusMediaReady},
		{StageKindTTS, domain.StageTTSGenerating, domain.StageTTSDone, domain.StageTTSPartialFailed, domain.SceneStatusTTSReady},
		{StageKindVideo, domain.StageVideoGenerating, domain.StageVideoDone, domain.StageVideoFailed, domain.SceneStatusCompleted},
	}
	for _, tt := range tests {
		if got := tt.kind.generatingStage(); got != tt.gen {
			t.Errorf("%s.generatingStage() = %s, want %s", tt.kind, got, tt.gen)
		}
		if got := tt.kind.doneStage(); got != tt.done {
			t.Errorf("%s.doneStage() = %s, want %s", tt.kind, got, tt.done)
		}
		if got := tt.kind.failedStage(); got != tt.failed {
			t.Errorf("%s.failedStage() = %s, want %s", tt.kind, got, tt.failed)
		}
		if got := tt.kind.targetStatus(); got != tt.target {
			t.Errorf("%s.targetStatus() = %s, want %s", tt.kind, got, tt.target)
		}
		if kind, ok := kindForStage(tt.gen); !ok || kind != tt.kind {
			t.Errorf("kindForStage(%s) = (%s, %v), want (%s, true)", tt.gen, kind, ok, tt.kind)
		}
	}
	if _, ok := kindForStage(domain.StageChatting); ok {
		t.Error("kindForStage(CHATTING) should have no kind")
	}
}
