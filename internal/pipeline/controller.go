// Package pipeline is the orchestration engine: the job-level stage state
// machine, per-scene processing, the checkpoint/resume mechanism, and the
// selective retry coordinator. Request handlers only validate and enqueue;
// all generation work runs on detached goroutines owned by the Controller,
// and progress is observed by polling persisted state.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/credentials"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/scenario"
	"storyreel/internal/providers/tts"
	"storyreel/internal/providers/video"
	"storyreel/internal/ratelimit"
)

// Provider classes for rate limiting. Each class gets its own shared limiter.
const (
	classScenario = "scenario"
	classImage    = "image"
	classTTS      = "tts"
	classVideo    = "video"
)

// BlobStore is the artifact persistence contract the pipeline needs.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// Options tunes the controller.
type Options struct {
	SceneParallelism int
	MaxAttempts      int
	ProviderTimeout  time.Duration
	SlideCount       int
	DefaultLocale    string
}

func (o *Options) normalize() {
	if o.SceneParallelism < 1 {
		o.SceneParallelism = 1
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = 2 * time.Minute
	}
	if o.SlideCount < 1 {
		o.SlideCount = 5
	}
}

// Controller sequences job stages and owns all background generation work.
// Only the controller mutates Job.Stage.
type Controller struct {
	jobs     domain.JobRepository
	scenes   domain.SceneRepository
	limiters *ratelimit.Registry
	rotator  *credentials.Rotator
	scenario scenario.Generator
	images   image.Generator
	speech   tts.Generator
	videos   video.Composer
	store    BlobStore
	logger   infra.Logger
	opts     Options

	baseCtx context.Context

	mu     sync.Mutex
	active map[string]string // userID -> jobID with in-flight background work
	wg     sync.WaitGroup
}

// Deps carries the controller's collaborators.
type Deps struct {
	Jobs     domain.JobRepository
	Scenes   domain.SceneRepository
	Limiters *ratelimit.Registry
	Rotator  *credentials.Rotator
	Scenario scenario.Generator
	Images   image.Generator
	Speech   tts.Generator
	Videos   video.Composer
	Store    BlobStore
	Logger   infra.Logger
}

// NewController constructs the engine. baseCtx bounds all detached work; when
// it is cancelled, in-flight provider calls stop and their scenes fail with
// the cancellation recorded.
func NewController(baseCtx context.Context, deps Deps, opts Options) *Controller {
	opts.normalize()
	return &Controller{
		jobs:     deps.Jobs,
		scenes:   deps.Scenes,
		limiters: deps.Limiters,
		rotator:  deps.Rotator,
		scenario: deps.Scenario,
		images:   deps.Images,
		speech:   deps.Speech,
		videos:   deps.Videos,
		store:    deps.Store,
		logger:   deps.Logger,
		opts:     opts,
		baseCtx:  baseCtx,
		active:   make(map[string]string),
	}
}

// Wait blocks until all detached background work has drained. Used on shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// StartInput is the validated payload for StartJob.
type StartInput struct {
	Input      string
	Locale     string
	SlideCount int
	// PinnedKey, when set, is a caller-supplied provider key that bypasses
	// the credential pool for this job's scenario generation.
	PinnedKey string
}

// StartJob creates a job for the user and schedules scenario generation as a
// detached background task. It returns the job id immediately; callers poll
// Progress for advancement. A second job for the same user while one is in a
// generating stage fails with ErrConcurrencyConflict and creates nothing.
func (c *Controller) StartJob(ctx context.Context, userID string, in StartInput) (string, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(in.Input) == "" {
		return "", fmt.Errorf("user id and input are required: %w", domain.ErrValidation)
	}

	// In-process guard first: it is authoritative for work this process is
	// actually running, and checking it before the insert means the losing
	// call creates no job row at all.
	if !c.tryAcquire(userID, "") {
		return "", domain.ErrConcurrencyConflict
	}
	release := true
	defer func() {
		if release {
			c.releaseUser(userID)
		}
	}()

	// The persisted guard covers jobs left generating by a previous process.
	if existing, err := c.jobs.ActiveForUser(ctx, userID); err != nil {
		return "", fmt.Errorf("check active job: %w", err)
	} else if existing != nil {
		return "", fmt.Errorf("job %s is %s: %w", existing.ID, existing.Stage, domain.ErrConcurrencyConflict)
	}

	locale := in.Locale
	if locale == "" {
		locale = c.opts.DefaultLocale
	}
	job := &domain.Job{
		ID:     uuid.NewString(),
		UserID: userID,
		Stage:  domain.StageChatting,
		Input:  strings.TrimSpace(in.Input),
		Locale: locale,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	c.setActiveJob(userID, job.ID)
	release = false
	c.spawn(userID, func(ctx context.Context) {
		c.runScenario(ctx, job.ID, in)
	})
	return job.ID, nil
}

// StartStage validates the requested transition and schedules the stage's
// scene processing as a detached background task.
func (c *Controller) StartStage(ctx context.Context, jobID string, kind StageKind, pinnedKey string) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	target := kind.generatingStage()
	if !domain.CanTransition(job.Stage, target) {
		return fmt.Errorf("cannot start %s from %s: %w", kind, job.Stage, domain.ErrInvalidTransition)
	}
	if !c.tryAcquire(job.UserID, job.ID) {
		return domain.ErrConcurrencyConflict
	}
	if err := c.advance(ctx, job, target, nil); err != nil {
		c.releaseUser(job.UserID)
		return err
	}
	c.spawn(job.UserID, func(ctx context.Context) {
		c.runStage(ctx, job.ID, kind, stageRun{pinnedKey: pinnedKey})
	})
	return nil
}

// Progress returns the job's stage and scene counters. It never blocks on
// generation work and never mutates anything.
func (c *Controller) Progress(ctx context.Context, jobID string) (*domain.Progress, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	p := &domain.Progress{JobID: job.ID, Stage: job.Stage}
	kind, ok := kindForStage(job.Stage)
	if !ok && job.Stage != domain.StageSceneRegenerating {
		p.Message = progressMessage(job.Stage, Tally{})
		return p, nil
	}
	scenes, err := c.scenes.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Regeneration keeps reporting the counters of the stage the job
		// will return to.
		kind = kindFromScenes(scenes)
	}
	tally := TallyScenes(scenes, kind.targetStatus())
	p.Total = tally.Total
	p.Completed = tally.Completed
	p.Failed = tally.Failed
	p.Message = progressMessage(job.Stage, tally)
	return p, nil
}

// DeleteJob removes a job and its scenes. Deletion is refused while this
// process is still generating for the job's user.
func (c *Controller) DeleteJob(ctx context.Context, jobID string) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	_, busy := c.active[job.UserID]
	c.mu.Unlock()
	if busy {
		return domain.ErrConcurrencyConflict
	}
	return c.jobs.Delete(ctx, jobID)
}

// advance is the single mutation point for Job.Stage. Illegal transitions
// are rejected against the central table before anything is written.
func (c *Controller) advance(ctx context.Context, job *domain.Job, to domain.Stage, errMsg *string) error {
	if job.Stage == to {
		return nil
	}
	if !domain.CanTransition(job.Stage, to) {
		return fmt.Errorf("stage %s -> %s: %w", job.Stage, to, domain.ErrInvalidTransition)
	}
	if err := c.jobs.UpdateStage(ctx, job.ID, to, errMsg); err != nil {
		return fmt.Errorf("persist stage %s: %w", to, err)
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(job.Stage)).
		Str("to", string(to)).
		Msg("pipeline: stage transition")
	job.Stage = to
	return nil
}

// spawn runs fn on a tracked goroutine bound to the controller's base
// context and releases the user's single-flight slot when fn returns.
func (c *Controller) spawn(userID string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.releaseUser(userID)
		fn(c.baseCtx)
	}()
}

func (c *Controller) tryAcquire(userID, jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[userID]; busy {
		return false
	}
	c.active[userID] = jobID
	return true
}

func (c *Controller) setActiveJob(userID, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[userID] = jobID
}

func (c *Controller) releaseUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, userID)
}

func progressMessage(stage domain.Stage, t Tally) string {
	switch stage {
	case domain.StageChatting:
		return "waiting for scenario generation to start"
	case domain.StageScenarioGenerating:
		return "generating scenario"
	case domain.StageScenarioDone:
		return "scenario ready"
	case domain.StageScenarioFailed:
		return "scenario generation failed"
	case domain.StageSceneRegenerating:
		return "regenerating scenes"
	}
	if t.Total == 0 {
		return string(stage)
	}
	return fmt.Sprintf("%d/%d scenes done, %d failed", t.Completed, t.Total, t.Failed)
}
