package domain

import "context"

// JobRepository defines persistence for job entities. Every mutation is a
// short independent write; no method holds database state across a provider
// call.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	UpdateStage(ctx context.Context, jobID string, stage Stage, errMsg *string) error
	UpdateMeta(ctx context.Context, jobID, title, style string) error
	UpdateVideoURL(ctx context.Context, jobID, url string) error
	ActiveForUser(ctx context.Context, userID string) (*Job, error)
	Delete(ctx context.Context, jobID string) error
}

// SceneRepository defines persistence for scene entities. CreateBatch must be
// atomic; the update methods are each scoped to one field group so that slow
// external calls never sit inside a transaction.
type SceneRepository interface {
	CreateBatch(ctx context.Context, scenes []Scene) error
	ListByJob(ctx context.Context, jobID string) ([]Scene, error)
	GetByID(ctx context.Context, sceneID string) (*Scene, error)
	UpdateStatus(ctx context.Context, sceneID string, status SceneStatus) error
	UpdateFailure(ctx context.Context, sceneID string, errMsg string) error
	UpdateImage(ctx context.Context, sceneID, imageURL string) error
	UpdateAudio(ctx context.Context, sceneID, audioURL, subtitleURL string) error
	UpdateVideo(ctx context.Context, sceneID, videoURL string) error
	UpdateFeedback(ctx context.Context, sceneID, feedback string) error
}

// CredentialRepository defines persistence for the credential pool.
type CredentialRepository interface {
	ListActive(ctx context.Context, provider string) ([]Credential, error)
	Insert(ctx context.Context, cred *Credential) error
	SetActive(ctx context.Context, id string, active bool) error
	IncrementError(ctx context.Context, id string) error
	ResetError(ctx context.Context, id string) error
	TouchUsed(ctx context.Context, id string) error
}
