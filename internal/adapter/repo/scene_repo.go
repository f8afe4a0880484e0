package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// SceneRepositoryPG implements domain.SceneRepository. Each update method
// touches one field group, so a scene mutation is always a short
// independent write.
type SceneRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSceneRepository creates a new scene repository backed by PostgreSQL.
func NewSceneRepository(pool *pgxpool.Pool) *SceneRepositoryPG {
	return &SceneRepositoryPG{pool: pool}
}

const sceneColumns = `id, job_id, scene_order, scene_type, narration, prompt,
image_url, audio_url, subtitle_url, video_url,
status, retry_count, error_message, feedback, created_at, updated_at`

// CreateBatch inserts all scenes of a job atomically.
func (r *SceneRepositoryPG) CreateBatch(ctx context.Context, scenes []domain.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	query := `
INSERT INTO scenes (id, job_id, scene_order, scene_type, narration, prompt, status)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	batch := &pgx.Batch{}
	for _, s := range scenes {
		batch.Queue(query, s.ID, s.JobID, s.Order, s.Type, s.Narration, s.Prompt, s.Status)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range scenes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert scene batch: %w", err)
		}
	}
	return nil
}

// ListByJob returns a job's scenes in ascending order.
func (r *SceneRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Scene, error) {
	query := `
SELECT ` + sceneColumns + `
FROM scenes
WHERE job_id = $1
ORDER BY scene_order ASC;
`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []domain.Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, *s)
	}
	return scenes, rows.Err()
}

// GetByID fetches one scene.
func (r *SceneRepositoryPG) GetByID(ctx context.Context, sceneID string) (*domain.Scene, error) {
	query := `
SELECT ` + sceneColumns + `
FROM scenes
WHERE id = $1;
`
	s, err := scanScene(r.pool.QueryRow(ctx, query, sceneID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// UpdateStatus sets only the scene status.
func (r *SceneRepositoryPG) UpdateStatus(ctx context.Context, sceneID string, status domain.SceneStatus) error {
	query := `
UPDATE scenes
SET status = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, status)
	return err
}

// UpdateFailure marks the scene failed, records the error, and bumps the
// retry counter in one statement.
func (r *SceneRepositoryPG) UpdateFailure(ctx context.Context, sceneID string, errMsg string) error {
	query := `
UPDATE scenes
SET status = $2, error_message = $3, retry_count = retry_count + 1, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, domain.SceneStatusFailed, errMsg)
	return err
}

// UpdateImage records the preview artifact location.
func (r *SceneRepositoryPG) UpdateImage(ctx context.Context, sceneID, imageURL string) error {
	query := `
UPDATE scenes
SET image_url = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, imageURL)
	return err
}

// UpdateAudio records the narration audio and subtitle locations together.
func (r *SceneRepositoryPG) UpdateAudio(ctx context.Context, sceneID, audioURL, subtitleURL string) error {
	query := `
UPDATE scenes
SET audio_url = $2, subtitle_url = $3, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, audioURL, subtitleURL)
	return err
}

// UpdateVideo records the composed unit clip location.
func (r *SceneRepositoryPG) UpdateVideo(ctx context.Context, sceneID, videoURL string) error {
	query := `
UPDATE scenes
SET video_url = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, videoURL)
	return err
}

// UpdateFeedback stores the user's regeneration feedback.
func (r *SceneRepositoryPG) UpdateFeedback(ctx context.Context, sceneID, feedback string) error {
	query := `
UPDATE scenes
SET feedback = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, sceneID, feedback)
	return err
}

func scanScene(row pgx.Row) (*domain.Scene, error) {
	var s domain.Scene
	err := row.Scan(
		&s.ID,
		&s.JobID,
		&s.Order,
		&s.Type,
		&s.Narration,
		&s.Prompt,
		&s.ImageURL,
		&s.AudioURL,
		&s.SubtitleURL,
		&s.VideoURL,
		&s.Status,
		&s.RetryCount,
		&s.ErrorMessage,
		&s.Feedback,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ domain.SceneRepository = (*SceneRepositoryPG)(nil)
