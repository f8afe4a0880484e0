package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"storyreel/internal/domain"
)

// Seed inserts secret as an active priority-0 pool credential for provider
// unless an active credential already carries it. Deployments that configure
// a key through the environment get a usable pool without running the
// seeding CLI first. Returns whether a credential was inserted.
func Seed(ctx context.Context, repo domain.CredentialRepository, provider, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	existing, err := repo.ListActive(ctx, provider)
	if err != nil {
		return false, fmt.Errorf("list %s credentials: %w", provider, err)
	}
	for _, c := range existing {
		if c.Secret == secret {
			return false, nil
		}
	}
	cred := &domain.Credential{
		ID:       uuid.NewString(),
		Provider: provider,
		Secret:   secret,
		Priority: 0,
		Active:   true,
	}
	if err := repo.Insert(ctx, cred); err != nil {
		return false, fmt.Errorf("insert %s credential: %w", provider, err)
	}
	return true, nil
}
