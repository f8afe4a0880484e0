package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// CredentialRepositoryPG implements domain.CredentialRepository.
type CredentialRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new credential repository backed by PostgreSQL.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepositoryPG {
	return &CredentialRepositoryPG{pool: pool}
}

// ListActive returns the active credentials for a provider ordered by priority.
func (r *CredentialRepositoryPG) ListActive(ctx context.Context, provider string) ([]domain.Credential, error) {
	query := `
SELECT id, provider, secret, priority, active, error_count, last_used_at, last_error_at, created_at
FROM credentials
WHERE provider = $1 AND active = TRUE
ORDER BY priority ASC;
`
	rows, err := r.pool.Query(ctx, query, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(
			&c.ID,
			&c.Provider,
			&c.Secret,
			&c.Priority,
			&c.Active,
			&c.ErrorCount,
			&c.LastUsedAt,
			&c.LastErrorAt,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Insert stores a new credential.
func (r *CredentialRepositoryPG) Insert(ctx context.Context, cred *domain.Credential) error {
	query := `
INSERT INTO credentials (id, provider, secret, priority, active)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query, cred.ID, cred.Provider, cred.Secret, cred.Priority, cred.Active)
	return err
}

// SetActive toggles a credential in or out of the rotation pool.
func (r *CredentialRepositoryPG) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credentials SET active = $2 WHERE id = $1;`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// IncrementError bumps the consecutive error count and stamps the failure.
func (r *CredentialRepositoryPG) IncrementError(ctx context.Context, id string) error {
	query := `
UPDATE credentials
SET error_count = error_count + 1, last_error_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ResetError clears the consecutive error count.
func (r *CredentialRepositoryPG) ResetError(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE credentials SET error_count = 0 WHERE id = $1;`, id)
	return err
}

// TouchUsed stamps the credential's last successful use.
func (r *CredentialRepositoryPG) TouchUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE credentials SET last_used_at = NOW() WHERE id = $1;`, id)
	return err
}

var _ domain.CredentialRepository = (*CredentialRepositoryPG)(nil)
