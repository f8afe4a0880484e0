package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/middleware"
	"storyreel/internal/pipeline"
)

type jobCreateRequest struct {
	Input      string `json:"input" validate:"required,min=1,max=4000"`
	Locale     string `json:"locale" validate:"omitempty,bcp47_language_tag"`
	SlideCount int    `json:"slide_count" validate:"omitempty,min=1,max=20"`
	// ProviderKey pins a caller-supplied key instead of the rotation pool.
	ProviderKey string `json:"provider_key" validate:"omitempty,min=8"`
}

type stageStartRequest struct {
	ProviderKey string `json:"provider_key" validate:"omitempty,min=8"`
}

type resumeRequest struct {
	SkipFailed bool `json:"skip_failed"`
}

type retryRequest struct {
	SceneIDs       []string `json:"scene_ids" validate:"omitempty,dive,required"`
	MediaOnly      bool     `json:"media_only"`
	IncludePending bool     `json:"include_pending"`
}

type regenerateRequest struct {
	Feedback  string `json:"feedback" validate:"omitempty,max=2000"`
	MediaOnly bool   `json:"media_only"`
}

// JobsCreate accepts the chat input and schedules scenario generation.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	jobID, err := a.Ctrl.StartJob(r.Context(), userID, pipeline.StartInput{
		Input:      req.Input,
		Locale:     locale,
		SlideCount: req.SlideCount,
		PinnedKey:  req.ProviderKey,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// StagesStart kicks off one generation stage for the job.
func (a *App) StagesStart(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	kind, ok := pipeline.ParseStageKind(chi.URLParam(r, "stage"))
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown stage")
		return
	}
	var req stageStartRequest
	// The body is optional here.
	_ = a.decode(r, &req)
	if err := a.Ctrl.StartStage(r.Context(), jobID, kind, req.ProviderKey); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "stage": string(kind)})
}

// JobsProgress is the polling endpoint; it never blocks on generation.
func (a *App) JobsProgress(w http.ResponseWriter, r *http.Request) {
	p, err := a.Ctrl.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) JobsCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := a.Ctrl.Checkpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, cp)
}

func (a *App) JobsResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	_ = a.decode(r, &req)
	outcome, err := a.Ctrl.Resume(r.Context(), chi.URLParam(r, "id"), req.SkipFailed)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"outcome": outcome})
}

func (a *App) JobsRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Ctrl.RetryFailed(r.Context(), chi.URLParam(r, "id"), pipeline.RetryOptions{
		SceneIDs:       req.SceneIDs,
		MediaOnly:      req.MediaOnly,
		IncludePending: req.IncludePending,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"outcome": outcome})
}

// ScenesRegenerate re-runs one scene's media with user feedback.
func (a *App) ScenesRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := a.decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	jobID := chi.URLParam(r, "id")
	sceneID := chi.URLParam(r, "sceneID")
	if err := a.Ctrl.RegenerateScene(r.Context(), jobID, sceneID, req.Feedback, req.MediaOnly); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "scene_id": sceneID})
}

func (a *App) JobsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Ctrl.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
