// Package credentials manages the prioritized pool of provider API
// credentials: health-based selection, fallback rotation, and the
// degraded-recovery policy used when every credential is over threshold.
package credentials

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storyreel/internal/cache"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

// Selection is the outcome of picking a credential. Degraded marks the
// availability-over-correctness path: every pooled credential was over the
// error threshold and the highest-priority one was reset and reused. Callers
// can surface this instead of treating the credential as healthy.
type Selection struct {
	Credential domain.Credential
	Degraded   bool
	Pinned     bool
}

// Rotator selects and rotates credentials per provider. The pool is read
// through a TTL cache so selection stays cheap inside the scene loop; any
// health mutation invalidates the cached pool.
type Rotator struct {
	repo     domain.CredentialRepository
	logger   infra.Logger
	maxErrs  int
	pools    *cache.TTL[string, []domain.Credential]
	mu       sync.Mutex
	current  map[string]string // provider -> credential id the last call was attributed to
}

// NewRotator constructs a rotator. maxErrs is the consecutive-error count at
// which a credential stops being eligible; poolTTL bounds how stale the
// cached pool may get.
func NewRotator(repo domain.CredentialRepository, logger infra.Logger, maxErrs int, poolTTL time.Duration) *Rotator {
	if maxErrs <= 0 {
		maxErrs = 3
	}
	return &Rotator{
		repo:    repo,
		logger:  logger,
		maxErrs: maxErrs,
		pools:   cache.New[string, []domain.Credential](0, poolTTL),
		current: make(map[string]string),
	}
}

// Pinned wraps a caller-supplied credential that bypasses the pool for one
// unit of work. Health bookkeeping never applies to pinned credentials.
func Pinned(provider, secret string) Selection {
	return Selection{
		Credential: domain.Credential{Provider: provider, Secret: secret},
		Pinned:     true,
	}
}

// Select returns the eligible credential with the lowest priority value. If
// no credential is under the error threshold, the highest-priority one has
// its error count reset and is returned with Degraded set, so the pipeline
// keeps moving instead of going fully unavailable.
func (r *Rotator) Select(ctx context.Context, provider string) (Selection, error) {
	pool, err := r.pool(ctx, provider)
	if err != nil {
		return Selection{}, err
	}
	if len(pool) == 0 {
		return Selection{}, fmt.Errorf("no active credentials for provider %q: %w", provider, domain.ErrProviderExhausted)
	}

	for _, cred := range pool {
		if cred.ErrorCount < r.maxErrs {
			r.attribute(provider, cred.ID)
			return Selection{Credential: cred}, nil
		}
	}

	// Degraded recovery: reset and reuse the preferred credential rather
	// than failing the whole pipeline.
	recovered := pool[0]
	if err := r.repo.ResetError(ctx, recovered.ID); err != nil {
		return Selection{}, fmt.Errorf("reset credential %s: %w", recovered.ID, err)
	}
	r.pools.Invalidate(provider)
	r.attribute(provider, recovered.ID)
	recovered.ErrorCount = 0
	r.logger.Warn().
		Str("provider", provider).
		Str("credential_id", recovered.ID).
		Msg("credentials: pool exhausted, reusing highest-priority credential in degraded mode")
	return Selection{Credential: recovered, Degraded: true}, nil
}

// NextFallback advances to the next eligible credential, excluding the one
// the current call is attributed to, for an immediate retry within the same
// operation. It returns ErrProviderExhausted when no alternative exists.
func (r *Rotator) NextFallback(ctx context.Context, provider string) (Selection, error) {
	currentID := r.attributed(provider)
	pool, err := r.pool(ctx, provider)
	if err != nil {
		return Selection{}, err
	}
	for _, cred := range pool {
		if cred.ID == currentID {
			continue
		}
		if cred.ErrorCount < r.maxErrs {
			r.attribute(provider, cred.ID)
			return Selection{Credential: cred}, nil
		}
	}
	return Selection{}, fmt.Errorf("no fallback credential for provider %q: %w", provider, domain.ErrProviderExhausted)
}

// MarkSuccess resets the error count of the currently attributed credential
// and stamps its last use.
func (r *Rotator) MarkSuccess(ctx context.Context, provider string) error {
	id := r.attributed(provider)
	if id == "" {
		return nil
	}
	if err := r.repo.ResetError(ctx, id); err != nil {
		return err
	}
	if err := r.repo.TouchUsed(ctx, id); err != nil {
		return err
	}
	r.pools.Invalidate(provider)
	return nil
}

// MarkFailure increments the error count of the currently attributed
// credential and reports whether another credential under the threshold
// remains, signalling whether an immediate fallback retry is worthwhile.
func (r *Rotator) MarkFailure(ctx context.Context, provider string) (bool, error) {
	id := r.attributed(provider)
	if id == "" {
		return false, nil
	}
	if err := r.repo.IncrementError(ctx, id); err != nil {
		return false, err
	}
	r.pools.Invalidate(provider)

	pool, err := r.pool(ctx, provider)
	if err != nil {
		return false, err
	}
	for _, cred := range pool {
		if cred.ID != id && cred.ErrorCount < r.maxErrs {
			return true, nil
		}
	}
	return false, nil
}

func (r *Rotator) pool(ctx context.Context, provider string) ([]domain.Credential, error) {
	if cached, ok := r.pools.Get(provider); ok {
		return cached, nil
	}
	creds, err := r.repo.ListActive(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("list credentials for %q: %w", provider, err)
	}
	sort.SliceStable(creds, func(i, j int) bool {
		return creds[i].Priority < creds[j].Priority
	})
	r.pools.Set(provider, creds)
	return creds, nil
}

func (r *Rotator) attribute(provider, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[provider] = id
}

func (r *Rotator) attributed(provider string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current[provider]
}
