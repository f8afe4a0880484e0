package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently at startup. Scenes cascade with their job;
// scene_order is contiguous from 0 and unique within a job.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    stage         TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    style         TEXT NOT NULL DEFAULT '',
    input         TEXT NOT NULL DEFAULT '',
    locale        TEXT NOT NULL DEFAULT '',
    video_url     TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_jobs_user_stage ON jobs (user_id, stage);

CREATE TABLE IF NOT EXISTS scenes (
    id            TEXT PRIMARY KEY,
    job_id        TEXT NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
    scene_order   INT  NOT NULL,
    scene_type    TEXT NOT NULL,
    narration     TEXT NOT NULL DEFAULT '',
    prompt        TEXT NOT NULL DEFAULT '',
    image_url     TEXT NOT NULL DEFAULT '',
    audio_url     TEXT NOT NULL DEFAULT '',
    subtitle_url  TEXT NOT NULL DEFAULT '',
    video_url     TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    retry_count   INT  NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    feedback      TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (job_id, scene_order)
);

CREATE TABLE IF NOT EXISTS credentials (
    id            TEXT PRIMARY KEY,
    provider      TEXT NOT NULL,
    secret        TEXT NOT NULL,
    priority      INT  NOT NULL DEFAULT 100,
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    error_count   INT  NOT NULL DEFAULT 0,
    last_used_at  TIMESTAMPTZ,
    last_error_at TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials (provider, priority);
`

// EnsureSchema applies the schema at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
