package pipeline

import (
	"context"
	"fmt"

	"storyreel/internal/domain"
)

// Resume outcomes reported to callers.
const (
	OutcomeResumed          = "resumed"
	OutcomeAlreadyCompleted = "already_completed"
)

// Checkpoint derives the resumable state of a job purely from persisted
// scene rows. No provider is contacted.
func (c *Controller) Checkpoint(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	cp := &domain.Checkpoint{JobID: job.ID, Stage: job.Stage}

	kind, ok := kindForStage(job.Stage)
	if !ok {
		return cp, nil
	}
	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	target := kind.targetStatus()
	cp.Total = len(scenes)
	for _, s := range scenes {
		switch {
		case s.Status.AtLeast(target):
			cp.Completed++
			cp.CompletedIDs = append(cp.CompletedIDs, s.ID)
		case s.Status == domain.SceneStatusFailed:
			cp.Failed++
			cp.FailedIDs = append(cp.FailedIDs, s.ID)
		}
	}
	cp.CanResume = cp.Total > 0 && cp.Completed < cp.Total
	return cp, nil
}

// Resume re-enters the current stage's processing loop from persisted scene
// state. With skipFailed, FAILED scenes stay untouched and are excluded from
// the completion requirement; otherwise they are re-queued as PENDING first.
// A job whose stage is already fully complete is left alone.
func (c *Controller) Resume(ctx context.Context, jobID string, skipFailed bool) (string, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	kind, ok := kindForStage(job.Stage)
	if !ok {
		return "", fmt.Errorf("stage %s has no resumable scene work: %w", job.Stage, domain.ErrValidation)
	}
	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	tally := TallyScenes(scenes, kind.targetStatus())
	if tally.AllCompleted() || (skipFailed && tally.DoneDegraded()) {
		return OutcomeAlreadyCompleted, nil
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

	if !skipFailed {
		for _, s := range scenes {
			if s.Status == domain.SceneStatusFailed {
				if err := c.scenes.UpdateStatus(ctx, s.ID, domain.SceneStatusPending); err != nil {
					return "", err
				}
			}
		}
	}
	if err := c.advance(ctx, job, kind.generatingStage(), nil); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Str("stage", string(kind)).
		Bool("skip_failed", skipFailed).
		Int("completed", tally.Completed).
		Int("total", tally.Total).
		Msg("pipeline: resuming stage")

	release = false
	c.spawn(job.UserID, func(ctx context.Context) {
		c.runStage(ctx, job.ID, kind, stageRun{skipFailed: skipFailed})
	})
	return OutcomeResumed, nil
}
