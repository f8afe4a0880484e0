package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"storyreel/internal/credentials"
	"storyreel/internal/domain"
	"storyreel/internal/providers"
	"storyreel/internal/providers/genai"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/prompt"
	"storyreel/internal/providers/scenario"
	"storyreel/internal/providers/tts"
	"storyreel/internal/providers/video"
)

// stageRun carries per-run options threaded explicitly through the scene
// loop; nothing here lives in goroutine-local state. A non-nil only set
// restricts processing to those scene ids, everything else is left untouched.
type stageRun struct {
	pinnedKey  string
	skipFailed bool
	mediaOnly  bool
	only       map[string]struct{}
}

func (r stageRun) selects(sceneID string) bool {
	if r.only == nil {
		return true
	}
	_, ok := r.only[sceneID]
	return ok
}

// runScenario drives CHATTING -> SCENARIO_GENERATING -> SCENARIO_DONE and
// creates the scene batch. Scenario failure fails the whole job: no units
// exist yet to isolate.
func (c *Controller) runScenario(ctx context.Context, jobID string, in StartInput) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: load job for scenario")
		return
	}
	if err := c.advance(ctx, job, domain.StageScenarioGenerating, nil); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: enter scenario stage")
		return
	}

	slides := in.SlideCount
	if slides < 1 {
		slides = c.opts.SlideCount
	}
	var draft *domain.ScenarioDraft
	err = c.callProvider(ctx, classScenario, in.PinnedKey, func(ctx context.Context, apiKey string) error {
		var genErr error
		draft, genErr = c.scenario.Generate(ctx, scenario.Request{
			Input:      job.Input,
			Locale:     job.Locale,
			SlideCount: slides,
			APIKey:     apiKey,
			RequestID:  job.ID,
		})
		return genErr
	})
	if err != nil {
		msg := fmt.Sprintf("scenario generation failed: %v", err)
		c.failJob(ctx, job, domain.StageScenarioFailed, msg)
		return
	}

	scenes := scenesFromDraft(job.ID, draft)
	if err := c.scenes.CreateBatch(ctx, scenes); err != nil {
		msg := fmt.Sprintf("persist scenes: %v", err)
		c.failJob(ctx, job, domain.StageScenarioFailed, msg)
		return
	}
	if err := c.advance(ctx, job, domain.StageScenarioDone, nil); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: persist scenario done")
		return
	}
	job.Title = draft.Title
	job.Style = draft.Style
	if err := c.jobs.UpdateMeta(ctx, job.ID, draft.Title, draft.Style); err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pipeline: persist scenario meta")
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Int("scenes", len(scenes)).
		Msg("pipeline: scenario complete")
}

func scenesFromDraft(jobID string, draft *domain.ScenarioDraft) []domain.Scene {
	var scenes []domain.Scene
	order := 0
	if draft.Opening != nil {
		scenes = append(scenes, domain.Scene{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Order:     order,
			Type:      domain.SceneTypeOpening,
			Narration: draft.Opening.Narration,
			Prompt:    draft.Opening.Prompt,
			Status:    domain.SceneStatusPending,
		})
		order++
	}
	for _, s := range draft.Slides {
		scenes = append(scenes, domain.Scene{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Order:     order,
			Type:      domain.SceneTypeSlide,
			Narration: s.Narration,
			Prompt:    s.Prompt,
			Status:    domain.SceneStatusPending,
		})
		order++
	}
	return scenes
}

// runStage processes every non-terminal scene for the stage, then settles
// the job into the stage's done or partial-failed variant.
func (c *Controller) runStage(ctx context.Context, jobID string, kind StageKind, run stageRun) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: load job for stage")
		return
	}
	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: list scenes")
		return
	}

	c.processScenes(ctx, job, scenes, kind, run)
	c.finishStage(ctx, job, kind, run)
}

// processScenes walks scenes in ascending order. With parallelism above one,
// workers still serialize through the shared per-class limiter, so pacing
// stays global.
func (c *Controller) processScenes(ctx context.Context, job *domain.Job, scenes []domain.Scene, kind StageKind, run stageRun) {
	target := kind.targetStatus()
	sem := semaphore.NewWeighted(int64(c.opts.SceneParallelism))
	var wg sync.WaitGroup

	for i := range scenes {
		sc := scenes[i]
		if !run.selects(sc.ID) {
			continue
		}
		if sc.Status.AtLeast(target) {
			continue
		}
		if sc.Status == domain.SceneStatusFailed {
			// Failed units are only re-entered through resume or retry.
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			c.processScene(ctx, job, &sc, kind, run)
		}()
	}
	wg.Wait()
}

// processScene runs one unit through the stage's step and persists the
// outcome with short writes on either side of the provider call.
func (c *Controller) processScene(ctx context.Context, job *domain.Job, sc *domain.Scene, kind StageKind, run stageRun) {
	if err := c.scenes.UpdateStatus(ctx, sc.ID, domain.SceneStatusGenerating); err != nil {
		c.logger.Error().Err(err).Str("scene_id", sc.ID).Msg("pipeline: mark scene generating")
		return
	}
	final := kind.targetStatus()
	var err error
	switch {
	case kind == StageKindTTS && run.mediaOnly:
		// Regenerate the scene's image and keep any narration audio.
		err = c.stepPreview(ctx, job, sc, run)
		if sc.AudioURL == "" {
			final = domain.SceneStatusMediaReady
		}
	case kind == StageKindPreviews:
		err = c.stepPreview(ctx, job, sc, run)
	case kind == StageKindTTS:
		err = c.stepTTS(ctx, job, sc, run)
	default:
		err = c.stepVideo(ctx, job, sc, run)
	}
	if err != nil {
		if ferr := c.scenes.UpdateFailure(ctx, sc.ID, err.Error()); ferr != nil {
			c.logger.Error().Err(ferr).Str("scene_id", sc.ID).Msg("pipeline: persist scene failure")
		}
		c.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("scene_id", sc.ID).
			Int("order", sc.Order).
			Str("stage", string(kind)).
			Msg("pipeline: scene failed")
		return
	}
	if err := c.scenes.UpdateStatus(ctx, sc.ID, final); err != nil {
		c.logger.Error().Err(err).Str("scene_id", sc.ID).Msg("pipeline: persist scene status")
	}
}

// stepPreview generates the scene's image. A content-filter refusal gets one
// pass through the safe prompt variant instead of a retry loop.
func (c *Controller) stepPreview(ctx context.Context, job *domain.Job, sc *domain.Scene, run stageRun) error {
	generate := func(p string) error {
		return c.callProvider(ctx, classImage, run.pinnedKey, func(ctx context.Context, apiKey string) error {
			asset, err := c.images.Generate(ctx, image.GenerateRequest{
				Prompt:    p,
				APIKey:    apiKey,
				RequestID: sc.ID,
				Locale:    job.Locale,
			})
			if err != nil {
				return err
			}
			key := fmt.Sprintf("jobs/%s/scenes/%02d/image.png", job.ID, sc.Order)
			if _, err := c.store.Write(ctx, key, asset.Data); err != nil {
				return err
			}
			return c.scenes.UpdateImage(ctx, sc.ID, c.store.URL(key))
		})
	}

	p := prompt.ForScene(sc, job.Style)
	err := generate(p)
	if providers.IsContentFiltered(err) {
		c.logger.Warn().Str("scene_id", sc.ID).Msg("pipeline: prompt filtered, trying safe variant")
		err = generate(prompt.SafeVariant(p))
	}
	return err
}

// stepTTS synthesizes the narration audio and subtitle track.
func (c *Controller) stepTTS(ctx context.Context, job *domain.Job, sc *domain.Scene, run stageRun) error {
	return c.callProvider(ctx, classTTS, run.pinnedKey, func(ctx context.Context, apiKey string) error {
		asset, err := c.speech.Generate(ctx, tts.GenerateRequest{
			Text:      sc.Narration,
			Locale:    job.Locale,
			APIKey:    apiKey,
			RequestID: sc.ID,
		})
		if err != nil {
			return err
		}
		audioKey := fmt.Sprintf("jobs/%s/scenes/%02d/narration.mp3", job.ID, sc.Order)
		if _, err := c.store.Write(ctx, audioKey, asset.Audio); err != nil {
			return err
		}
		subKey := fmt.Sprintf("jobs/%s/scenes/%02d/narration.srt", job.ID, sc.Order)
		if _, err := c.store.Write(ctx, subKey, asset.Subtitle); err != nil {
			return err
		}
		return c.scenes.UpdateAudio(ctx, sc.ID, c.store.URL(audioKey), c.store.URL(subKey))
	})
}

// stepVideo composes the scene's unit clip from its image and narration.
func (c *Controller) stepVideo(ctx context.Context, job *domain.Job, sc *domain.Scene, run stageRun) error {
	return c.callProvider(ctx, classVideo, run.pinnedKey, func(ctx context.Context, apiKey string) error {
		asset, err := c.videos.ComposeScene(ctx, video.ComposeRequest{
			ImageKey:  sc.ImageURL,
			AudioKey:  sc.AudioURL,
			Narration: sc.Narration,
			APIKey:    apiKey,
			RequestID: sc.ID,
		})
		if err != nil {
			return err
		}
		key := fmt.Sprintf("jobs/%s/scenes/%02d/clip.mp4", job.ID, sc.Order)
		if _, err := c.store.Write(ctx, key, asset.Data); err != nil {
			return err
		}
		return c.scenes.UpdateVideo(ctx, sc.ID, c.store.URL(key))
	})
}

// finishStage settles the job once every scene is terminal for the stage.
// The video stage additionally composes the final artifact when all units
// completed.
func (c *Controller) finishStage(ctx context.Context, job *domain.Job, kind StageKind, run stageRun) {
	scenes, err := c.scenes.ListByJob(ctx, job.ID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: reload scenes")
		return
	}
	tally := TallyScenes(scenes, kind.targetStatus())

	switch {
	case tally.AllCompleted(), run.skipFailed && tally.DoneDegraded():
		if kind == StageKindVideo {
			if err := c.composeFinal(ctx, job, scenes, run); err != nil {
				msg := fmt.Sprintf("final composition failed: %v", err)
				c.failJob(ctx, job, domain.StageVideoFailed, msg)
				return
			}
		}
		if err := c.advance(ctx, job, kind.doneStage(), nil); err != nil {
			c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: settle stage done")
		}
	case tally.PartialFailed():
		msg := fmt.Sprintf("%d of %d scenes failed", tally.Failed, tally.Total)
		if err := c.advance(ctx, job, kind.failedStage(), &msg); err != nil {
			c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: settle stage failed")
		}
	case tally.Total > 0 && tally.Working == 0 && ctx.Err() == nil:
		// A scoped run (mediaOnly, explicit scene ids) can finish with
		// scenes still short of the stage target. Settle at the failed
		// variant so polling observes a terminal stage rather than a
		// generating one with no work running.
		msg := fmt.Sprintf("%d of %d scenes incomplete", tally.Total-tally.Completed, tally.Total)
		if err := c.advance(ctx, job, kind.failedStage(), &msg); err != nil {
			c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: settle stage short")
		}
	default:
		// Interrupted mid-stage (shutdown); the stage stays in its
		// generating state and resume picks up from persisted scene state.
		c.logger.Warn().
			Str("job_id", job.ID).
			Int("completed", tally.Completed).
			Int("total", tally.Total).
			Msg("pipeline: stage interrupted before all scenes were terminal")
	}
}

func (c *Controller) composeFinal(ctx context.Context, job *domain.Job, scenes []domain.Scene, run stageRun) error {
	var clips []string
	for _, s := range scenes {
		if s.VideoURL != "" {
			clips = append(clips, s.VideoURL)
		}
	}
	return c.callProvider(ctx, classVideo, run.pinnedKey, func(ctx context.Context, apiKey string) error {
		asset, err := c.videos.ComposeFinal(ctx, video.ConcatRequest{
			ClipKeys:  clips,
			APIKey:    apiKey,
			RequestID: job.ID,
		})
		if err != nil {
			return err
		}
		key := fmt.Sprintf("jobs/%s/final.mp4", job.ID)
		if _, err := c.store.Write(ctx, key, asset.Data); err != nil {
			return err
		}
		return c.jobs.UpdateVideoURL(ctx, job.ID, c.store.URL(key))
	})
}

// callProvider runs one provider call under the class limiter and credential
// rotation with a bounded attempt count. Content-filter refusals and
// permanent errors return immediately; rate limits and transient failures
// back off and rotate.
func (c *Controller) callProvider(ctx context.Context, class, pinnedKey string, fn func(ctx context.Context, apiKey string) error) error {
	limiter := c.limiters.For(class)
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := limiter.WaitIfNeeded(ctx); err != nil {
			return err
		}

		var sel credentials.Selection
		if pinnedKey != "" {
			sel = credentials.Pinned(genai.ProviderName, pinnedKey)
		} else {
			var err error
			sel, err = c.rotator.Select(ctx, genai.ProviderName)
			if err != nil {
				return err
			}
			if sel.Degraded {
				c.logger.Warn().Str("class", class).Msg("pipeline: running on degraded-recovery credential")
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.ProviderTimeout)
		err := fn(callCtx, sel.Credential.Secret)
		cancel()

		if err == nil {
			limiter.RecordSuccess()
			if !sel.Pinned {
				if merr := c.rotator.MarkSuccess(ctx, genai.ProviderName); merr != nil {
					c.logger.Warn().Err(merr).Msg("pipeline: mark credential success")
				}
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if callCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("provider call timed out after %s", c.opts.ProviderTimeout)
		}
		lastErr = err

		kind := providers.KindOf(err)
		switch kind {
		case providers.KindRateLimited:
			limiter.RecordError()
		case providers.KindOverloaded:
			limiter.RecordSevereError()
		case providers.KindContentFiltered:
			return err
		case providers.KindPermanent:
			if !sel.Pinned {
				if _, merr := c.rotator.MarkFailure(ctx, genai.ProviderName); merr != nil {
					c.logger.Warn().Err(merr).Msg("pipeline: mark credential failure")
				}
			}
			return err
		default:
			limiter.RecordError()
		}

		if !sel.Pinned {
			hasAlt, merr := c.rotator.MarkFailure(ctx, genai.ProviderName)
			if merr != nil {
				c.logger.Warn().Err(merr).Msg("pipeline: mark credential failure")
			} else if hasAlt {
				if _, ferr := c.rotator.NextFallback(ctx, genai.ProviderName); ferr != nil {
					c.logger.Warn().Err(ferr).Msg("pipeline: advance credential fallback")
				}
			}
		}
	}
	return lastErr
}

// failJob records a pipeline-level failure on the job itself.
func (c *Controller) failJob(ctx context.Context, job *domain.Job, stage domain.Stage, msg string) {
	c.logger.Error().
		Str("job_id", job.ID).
		Str("stage", string(stage)).
		Str("reason", msg).
		Msg("pipeline: job failed")
	if err := c.advance(ctx, job, stage, &msg); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("pipeline: persist job failure")
	}
}
