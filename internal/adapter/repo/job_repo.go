package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository. Every method is a single
// short statement; no repository call ever spans a provider round-trip.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, stage, title, style, input, locale)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Stage,
		job.Title,
		job.Style,
		job.Input,
		job.Locale,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, stage, title, style, input, locale, video_url, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// UpdateStage moves the job to a new stage, optionally recording an error message.
func (r *JobRepositoryPG) UpdateStage(ctx context.Context, jobID string, stage domain.Stage, errMsg *string) error {
	query := `
UPDATE jobs
SET stage = $2,
    error_message = COALESCE($3, error_message),
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, stage, errMsg)
	return err
}

// UpdateMeta records the generated title and visual style on the job.
func (r *JobRepositoryPG) UpdateMeta(ctx context.Context, jobID, title, style string) error {
	query := `
UPDATE jobs
SET title = $2, style = $3, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, title, style)
	return err
}

// UpdateVideoURL records the final composed artifact location.
func (r *JobRepositoryPG) UpdateVideoURL(ctx context.Context, jobID, url string) error {
	query := `
UPDATE jobs
SET video_url = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, url)
	return err
}

// ActiveForUser returns the user's job currently in a generating stage, if any.
func (r *JobRepositoryPG) ActiveForUser(ctx context.Context, userID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, stage, title, style, input, locale, video_url, error_message, created_at, updated_at
FROM jobs
WHERE user_id = $1 AND stage = ANY($2)
ORDER BY created_at DESC
LIMIT 1;
`
	stages := domain.GeneratingStages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	job, err := r.scanJob(r.pool.QueryRow(ctx, query, userID, names))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// Delete removes a job; scenes cascade via the foreign key.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

func (r *JobRepositoryPG) scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Stage,
		&job.Title,
		&job.Style,
		&job.Input,
		&job.Locale,
		&job.VideoURL,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
