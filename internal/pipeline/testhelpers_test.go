package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/credentials"
	"storyreel/internal/domain"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/scenario"
	"storyreel/internal/providers/tts"
	"storyreel/internal/providers/video"
	"storyreel/internal/ratelimit"
)

// memJobRepo is an in-memory domain.JobRepository for controller tests.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*domain.Job)}
}

func (r *memJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *memJobRepo) UpdateStage(_ context.Context, jobID string, stage domain.Stage, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Stage = stage
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (r *memJobRepo) UpdateMeta(_ context.Context, jobID, title, style string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Title = title
	job.Style = style
	return nil
}

func (r *memJobRepo) UpdateVideoURL(_ context.Context, jobID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.VideoURL = url
	return nil
}

func (r *memJobRepo) ActiveForUser(_ context.Context, userID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.UserID == userID && job.Stage.IsGenerating() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memJobRepo) Delete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, jobID)
	return nil
}

// memSceneRepo is an in-memory domain.SceneRepository that records which
// scene ids were mutated, for isolation assertions.
type memSceneRepo struct {
	mu      sync.Mutex
	scenes  map[string]*domain.Scene
	order   []string
	touched map[string]int
}

func newMemSceneRepo() *memSceneRepo {
	return &memSceneRepo{
		scenes:  make(map[string]*domain.Scene),
		touched: make(map[string]int),
	}
}

func (r *memSceneRepo) CreateBatch(_ context.Context, scenes []domain.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range scenes {
		cp := scenes[i]
		r.scenes[cp.ID] = &cp
		r.order = append(r.order, cp.ID)
	}
	return nil
}

func (r *memSceneRepo) ListByJob(_ context.Context, jobID string) ([]domain.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Scene
	for _, id := range r.order {
		if sc := r.scenes[id]; sc.JobID == jobID {
			out = append(out, *sc)
		}
	}
	return out, nil
}

func (r *memSceneRepo) GetByID(_ context.Context, sceneID string) (*domain.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scenes[sceneID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (r *memSceneRepo) mutate(sceneID string, fn func(*domain.Scene)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scenes[sceneID]
	if !ok {
		return domain.ErrNotFound
	}
	r.touched[sceneID]++
	fn(sc)
	return nil
}

func (r *memSceneRepo) UpdateStatus(_ context.Context, sceneID string, status domain.SceneStatus) error {
	return r.mutate(sceneID, func(sc *domain.Scene) { sc.Status = status })
}

func (r *memSceneRepo) UpdateFailure(_ context.Context, sceneID string, errMsg string) error {
	return r.mutate(sceneID, func(sc *domain.Scene) {
		sc.Status = domain.SceneStatusFailed
		sc.ErrorMessage = errMsg
		sc.RetryCount++
	})
}

func (r *memSceneRepo) UpdateImage(_ context.Context, sceneID, imageURL string) error {
	return r.mutate(sceneID, func(sc *domain.Scene) { sc.ImageURL = imageURL })
}

func (r *memSceneRepo) UpdateAudio(_ context.Context, sceneID, audioURL, subtitleURL string) error {
	return r.mutate(sceneID, func(sc *domain.Scene) {
		sc.AudioURL = audioURL
		sc.SubtitleURL = subtitleURL
	})
}

func (r *memSceneRepo) UpdateVideo(_ context.Context, sceneID, videoURL string) error {
	return r.mutate(sceneID, func(sc *domain.Scene) { sc.VideoURL = videoURL })
}

func (r *memSceneRepo) UpdateFeedback(_ context.Context, sceneID, feedback string) error {
	return r.mutate(sceneID, func(sc *domain.Scene) { sc.Feedback = feedback })
}

func (r *memSceneRepo) mutations(sceneID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touched[sceneID]
}

func (r *memSceneRepo) resetMutations() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = make(map[string]int)
}

// memCredRepo backs the rotator with one always-healthy credential.
type memCredRepo struct {
	mu    sync.Mutex
	creds []domain.Credential
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{creds: []domain.Credential{{
		ID:       "cred-1",
		Provider: "gemini",
		Secret:   "test-key",
		Priority: 0,
		Active:   true,
	}}}
}

func (r *memCredRepo) ListActive(_ context.Context, provider string) ([]domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Credential
	for _, c := range r.creds {
		if c.Provider == provider && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCredRepo) Insert(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = append(r.creds, *cred)
	return nil
}

func (r *memCredRepo) SetActive(_ context.Context, id string, active bool) error {
	return r.update(id, func(c *domain.Credential) { c.Active = active })
}

func (r *memCredRepo) IncrementError(_ context.Context, id string) error {
	return r.update(id, func(c *domain.Credential) { c.ErrorCount++ })
}

func (r *memCredRepo) ResetError(_ context.Context, id string) error {
	return r.update(id, func(c *domain.Credential) { c.ErrorCount = 0 })
}

func (r *memCredRepo) TouchUsed(_ context.Context, id string) error {
	return r.update(id, func(c *domain.Credential) {
		now := time.Now()
		c.LastUsedAt = &now
	})
}

func (r *memCredRepo) update(id string, fn func(*domain.Credential)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.creds {
		if r.creds[i].ID == id {
			fn(&r.creds[i])
			return nil
		}
	}
	return domain.ErrNotFound
}

// stubScenario returns a fixed draft with the requested slide count. A
// non-nil block channel holds Generate until the test closes it.
type stubScenario struct {
	err   error
	block chan struct{}
}

func (s *stubScenario) Generate(ctx context.Context, req scenario.Request) (*domain.ScenarioDraft, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	draft := &domain.ScenarioDraft{
		Title:   "Test Story",
		Style:   "storybook",
		Opening: &domain.SceneDraft{Narration: "once upon a time", Prompt: "an opening shot"},
	}
	for i := 0; i < req.SlideCount; i++ {
		draft.Slides = append(draft.Slides, domain.SceneDraft{
			Narration: fmt.Sprintf("slide %d narration", i+1),
			Prompt:    fmt.Sprintf("slide %d prompt", i+1),
		})
	}
	return draft, nil
}

// stubImages fails for prompts registered in failFor, by substring match.
// With safeRecovers set, any prompt carrying the safe-fallback prefix
// succeeds regardless.
type stubImages struct {
	mu           sync.Mutex
	calls        int
	failFor      map[string]error
	safeRecovers bool
}

func (s *stubImages) Generate(_ context.Context, req image.GenerateRequest) (*image.Asset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.safeRecovers && strings.HasPrefix(req.Prompt, "A family-friendly") {
		return &image.Asset{Data: []byte("png:" + req.Prompt), Format: "png"}, nil
	}
	if err := matchErr(s.failFor, req.Prompt); err != nil {
		return nil, err
	}
	return &image.Asset{Data: []byte("png:" + req.Prompt), Format: "png"}, nil
}

type stubTTS struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error
}

func (s *stubTTS) Generate(_ context.Context, req tts.GenerateRequest) (*tts.Asset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := matchErr(s.failFor, req.Text); err != nil {
		return nil, err
	}
	return &tts.Asset{
		Audio:          []byte("mp3:" + req.Text),
		AudioFormat:    "mp3",
		Subtitle:       []byte("srt:" + req.Text),
		SubtitleFormat: "srt",
	}, nil
}

type stubVideos struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubVideos) ComposeScene(_ context.Context, req video.ComposeRequest) (*video.Asset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &video.Asset{Data: []byte("mp4:" + req.Narration), Format: "mp4"}, nil
}

func (s *stubVideos) ComposeFinal(_ context.Context, req video.ConcatRequest) (*video.Asset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &video.Asset{Data: []byte(fmt.Sprintf("final:%d", len(req.ClipKeys))), Format: "mp4"}, nil
}

func matchErr(failFor map[string]error, text string) error {
	for substr, err := range failFor {
		if substr != "" && strings.Contains(text, substr) {
			return err
		}
	}
	return nil
}

// memBlobStore keeps written artifacts in a map.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Write(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return key, nil
}

func (s *memBlobStore) URL(key string) string {
	return "mem://" + key
}

// testEnv bundles a controller with its fakes.
type testEnv struct {
	ctrl   *Controller
	jobs   *memJobRepo
	scenes *memSceneRepo
	scen   *stubScenario
	images *stubImages
	speech *stubTTS
	videos *stubVideos
	store  *memBlobStore
}

func newTestEnv() *testEnv {
	jobs := newMemJobRepo()
	scenes := newMemSceneRepo()
	scen := &stubScenario{}
	images := &stubImages{}
	speech := &stubTTS{}
	videos := &stubVideos{}
	store := newMemBlobStore()
	logger := zerolog.Nop()
	limiters := ratelimit.NewRegistry(ratelimit.Config{
		InitialDelay: time.Microsecond,
		MinDelay:     time.Microsecond,
		MaxDelay:     time.Microsecond,
	}, time.Minute)
	rotator := credentials.NewRotator(newMemCredRepo(), logger, 3, time.Minute)

	ctrl := NewController(context.Background(), Deps{
		Jobs:     jobs,
		Scenes:   scenes,
		Limiters: limiters,
		Rotator:  rotator,
		Scenario: scen,
		Images:   images,
		Speech:   speech,
		Videos:   videos,
		Store:    store,
		Logger:   logger,
	}, Options{SlideCount: 3, MaxAttempts: 2})
	return &testEnv{
		ctrl:   ctrl,
		jobs:   jobs,
		scenes: scenes,
		scen:   scen,
		images: images,
		speech: speech,
		videos: videos,
		store:  store,
	}
}

// seedJob inserts a job plus scenes directly, bypassing scenario generation.
func (e *testEnv) seedJob(stage domain.Stage, statuses []domain.SceneStatus) *domain.Job {
	job := &domain.Job{
		ID:     "job-1",
		UserID: "user-1",
		Stage:  stage,
		Style:  "storybook",
		Input:  "a test story",
		Locale: "en",
	}
	_ = e.jobs.Create(context.Background(), job)
	var scenes []domain.Scene
	for i, st := range statuses {
		sc := domain.Scene{
			ID:        fmt.Sprintf("scene-%d", i+1),
			JobID:     job.ID,
			Order:     i,
			Type:      domain.SceneTypeSlide,
			Narration: fmt.Sprintf("narration %d", i+1),
			Prompt:    fmt.Sprintf("prompt %d", i+1),
			Status:    st,
		}
		if st.AtLeast(domain.SceneStatusMediaReady) {
			sc.ImageURL = fmt.Sprintf("mem://seed/%d/image.png", i+1)
		}
		if st.AtLeast(domain.SceneStatusTTSReady) {
			sc.AudioURL = fmt.Sprintf("mem://seed/%d/narration.mp3", i+1)
			sc.SubtitleURL = fmt.Sprintf("mem://seed/%d/narration.srt", i+1)
		}
		scenes = append(scenes, sc)
	}
	_ = e.scenes.CreateBatch(context.Background(), scenes)
	e.scenes.resetMutations()
	return job
}
