package pipeline

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
	"storyreel/internal/providers"
)

// Retry outcomes reported to callers.
const (
	OutcomeRetryStarted   = "retry_started"
	OutcomeNoFailedScenes = "no_failed_scenes"
)

// RetryOptions scopes a retry run. An empty SceneIDs list means every
// qualifying scene; MediaOnly regenerates only the image/video sub-step and
// preserves narration audio.
type RetryOptions struct {
	SceneIDs       []string
	MediaOnly      bool
	IncludePending bool
}

// RetryFailed re-queues the job's failed scenes (optionally an explicit
// subset) and re-enters the stage loop for just those scenes. Scenes outside
// the selection, completed ones included, are never mutated.
func (c *Controller) RetryFailed(ctx context.Context, jobID string, opts RetryOptions) (string, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	kind, ok := kindForStage(job.Stage)
	if !ok {
		return "", fmt.Errorf("stage %s has no retryable scene work: %w", job.Stage, domain.ErrValidation)
	}
	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return "", err
	}

	requested := make(map[string]struct{}, len(opts.SceneIDs))
	for _, id := range opts.SceneIDs {
		requested[id] = struct{}{}
	}
	selected := make(map[string]struct{})
	for _, s := range scenes {
		if len(requested) > 0 {
			if _, ok := requested[s.ID]; !ok {
				continue
			}
		}
		if s.Status == domain.SceneStatusFailed || (opts.IncludePending && s.Status == domain.SceneStatusPending) {
			selected[s.ID] = struct{}{}
		}
	}
	if len(selected) == 0 {
		return OutcomeNoFailedScenes, nil
	}

	if !c.tryAcquire(job.UserID, job.ID) {
		return "", domain.ErrConcurrencyConflict
	}
	release := true
	defer func() {
		if release {
			c.releaseUser(job.UserID)
		}
	}()

	for _, s := range scenes {
		if _, ok := selected[s.ID]; !ok {
			continue
		}
		if s.Status != domain.SceneStatusPending {
			if err := c.scenes.UpdateStatus(ctx, s.ID, domain.SceneStatusPending); err != nil {
				return "", err
			}
		}
	}
	if err := c.advance(ctx, job, kind.generatingStage(), nil); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Str("stage", string(kind)).
		Int("scenes", len(selected)).
		Bool("media_only", opts.MediaOnly).
		Msg("pipeline: retrying failed scenes")

	release = false
	c.spawn(job.UserID, func(ctx context.Context) {
		c.runStage(ctx, job.ID, kind, stageRun{mediaOnly: opts.MediaOnly, only: selected})
	})
	return OutcomeRetryStarted, nil
}

// RegenerateScene re-runs one scene's media with the user's feedback folded
// into the prompt, holding the job in SCENE_REGENERATING and returning it to
// a stage computed from the surviving scene states.
func (c *Controller) RegenerateScene(ctx context.Context, jobID, sceneID, feedback string, mediaOnly bool) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	sc, err := c.scenes.GetByID(ctx, sceneID)
	if err != nil {
		return err
	}
	if sc.JobID != job.ID {
		return fmt.Errorf("scene %s does not belong to job %s: %w", sceneID, jobID, domain.ErrNotFound)
	}
	origin := job.Stage
	kind, ok := kindForStage(origin)
	if !ok || !domain.CanTransition(origin, domain.StageSceneRegenerating) {
		return fmt.Errorf("cannot regenerate a scene while job is in %s: %w", origin, domain.ErrInvalidTransition)
	}

	if !c.tryAcquire(job.UserID, job.ID) {
		return domain.ErrConcurrencyConflict
	}
	release := true
	defer func() {
		if release {
			c.releaseUser(job.UserID)
		}
	}()

	if feedback != "" {
		if err := c.scenes.UpdateFeedback(ctx, sceneID, feedback); err != nil {
			return err
		}
		sc.Feedback = feedback
	}
	if err := c.scenes.UpdateStatus(ctx, sceneID, domain.SceneStatusRegenerating); err != nil {
		return err
	}
	if err := c.advance(ctx, job, domain.StageSceneRegenerating, nil); err != nil {
		return err
	}

	release = false
	c.spawn(job.UserID, func(ctx context.Context) {
		c.runRegenerate(ctx, job.ID, sc.ID, kind, mediaOnly)
	})
	return nil
}

// runRegenerate is the background half of RegenerateScene: image first, then
// narration audio unless the caller asked for media only.
func (c *Controller) runRegenerate(ctx context.Context, jobID, sceneID string, kind StageKind, mediaOnly bool) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: load job for regeneration")
		return
	}
	sc, err := c.scenes.GetByID(ctx, sceneID)
	if err != nil {
		c.logger.Error().Err(err).Str("scene_id", sceneID).Msg("pipeline: load scene for regeneration")
		return
	}

	run := stageRun{}
	err = c.stepPreview(ctx, job, sc, run)
	if err == nil && kind == StageKindTTS && (!mediaOnly || sc.AudioURL == "") {
		err = c.stepTTS(ctx, job, sc, run)
	}

	final := kind.targetStatus()
	if err != nil {
		if providers.IsContentFiltered(err) {
			c.logger.Warn().Str("scene_id", sc.ID).Msg("pipeline: regeneration prompt filtered")
		}
		if ferr := c.scenes.UpdateFailure(ctx, sc.ID, err.Error()); ferr != nil {
			c.logger.Error().Err(ferr).Str("scene_id", sc.ID).Msg("pipeline: persist regeneration failure")
		}
	} else if uerr := c.scenes.UpdateStatus(ctx, sc.ID, final); uerr != nil {
		c.logger.Error().Err(uerr).Str("scene_id", sc.ID).Msg("pipeline: persist regenerated scene")
	}

	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: reload scenes after regeneration")
		return
	}
	tally := TallyScenes(scenes, kind.targetStatus())
	next := kind.doneStage()
	if !tally.AllCompleted() {
		next = kind.failedStage()
	}
	if err := c.advance(ctx, job, next, nil); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: settle job after regeneration")
	}
}
