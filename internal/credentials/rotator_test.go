package credentials

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

type fakeCredRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func newFakeCredRepo(creds ...domain.Credential) *fakeCredRepo {
	repo := &fakeCredRepo{creds: make(map[string]*domain.Credential)}
	for i := range creds {
		c := creds[i]
		repo.creds[c.ID] = &c
	}
	return repo
}

func (f *fakeCredRepo) ListActive(ctx context.Context, provider string) ([]domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Credential
	for _, c := range f.creds {
		if c.Provider == provider && c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCredRepo) Insert(ctx context.Context, cred *domain.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *cred
	f.creds[c.ID] = &c
	return nil
}

func (f *fakeCredRepo) SetActive(ctx context.Context, id string, active bool) error {
	return f.update(id, func(c *domain.Credential) { c.Active = active })
}

func (f *fakeCredRepo) IncrementError(ctx context.Context, id string) error {
	return f.update(id, func(c *domain.Credential) { c.ErrorCount++ })
}

func (f *fakeCredRepo) ResetError(ctx context.Context, id string) error {
	return f.update(id, func(c *domain.Credential) { c.ErrorCount = 0 })
}

func (f *fakeCredRepo) TouchUsed(ctx context.Context, id string) error {
	return f.update(id, func(c *domain.Credential) {})
}

func (f *fakeCredRepo) update(id string, fn func(*domain.Credential)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, domain.ErrNotFound)
	}
	fn(c)
	return nil
}

func (f *fakeCredRepo) errorCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[id].ErrorCount
}

func cred(id, provider string, priority, errCount int) domain.Credential {
	return domain.Credential{
		ID:         id,
		Provider:   provider,
		Secret:     "secret-" + id,
		Priority:   priority,
		Active:     true,
		ErrorCount: errCount,
	}
}

func newTestRotator(repo domain.CredentialRepository) *Rotator {
	return NewRotator(repo, zerolog.Nop(), 3, 0)
}

func TestSelectPrefersLowestPriority(t *testing.T) {
	repo := newFakeCredRepo(
		cred("b", "gemini", 2, 0),
		cred("a", "gemini", 1, 0),
	)
	r := newTestRotator(repo)

	sel, err := r.Select(context.Background(), "gemini")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Credential.ID != "a" {
		t.Fatalf("Select = %q, want lowest-priority credential a", sel.Credential.ID)
	}
	if sel.Degraded {
		t.Fatal("healthy selection must not be degraded")
	}
}

func TestSelectSkipsCredentialsOverThreshold(t *testing.T) {
	repo := newFakeCredRepo(
		cred("a", "gemini", 1, 3),
		cred("b", "gemini", 2, 0),
	)
	r := newTestRotator(repo)

	sel, err := r.Select(context.Background(), "gemini")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Credential.ID != "b" {
		t.Fatalf("Select = %q, want b while a is over threshold", sel.Credential.ID)
	}
}

func TestSelectDegradedRecoveryWhenAllExhausted(t *testing.T) {
	repo := newFakeCredRepo(
		cred("a", "gemini", 1, 3),
		cred("b", "gemini", 2, 5),
	)
	r := newTestRotator(repo)

	sel, err := r.Select(context.Background(), "gemini")
	if err != nil {
		t.Fatalf("Select must not fail on total exhaustion: %v", err)
	}
	if sel.Credential.ID != "a" {
		t.Fatalf("degraded recovery picked %q, want highest-priority a", sel.Credential.ID)
	}
	if !sel.Degraded {
		t.Fatal("degraded recovery must be flagged")
	}
	if got := repo.errorCount("a"); got != 0 {
		t.Fatalf("recovered credential error count = %d, want reset to 0", got)
	}
}

func TestMarkFailureRotation(t *testing.T) {
	repo := newFakeCredRepo(
		cred("a", "gemini", 1, 0),
		cred("b", "gemini", 2, 0),
	)
	r := newTestRotator(repo)
	ctx := context.Background()

	// Fail credential a three times; each failure should still report that
	// an alternative exists.
	for i := 0; i < 3; i++ {
		if _, err := r.Select(ctx, "gemini"); err != nil {
			t.Fatalf("Select: %v", err)
		}
		hasAlt, err := r.MarkFailure(ctx, "gemini")
		if err != nil {
			t.Fatalf("MarkFailure: %v", err)
		}
		if !hasAlt {
			t.Fatalf("MarkFailure #%d reported no alternative while b is healthy", i+1)
		}
	}

	sel, err := r.Select(ctx, "gemini")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Credential.ID != "b" {
		t.Fatalf("after 3 failures Select = %q, want rotation to b", sel.Credential.ID)
	}
}

func TestMarkSuccessResetsErrorCount(t *testing.T) {
	repo := newFakeCredRepo(cred("a", "gemini", 1, 2))
	r := newTestRotator(repo)
	ctx := context.Background()

	if _, err := r.Select(ctx, "gemini"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := r.MarkSuccess(ctx, "gemini"); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if got := repo.errorCount("a"); got != 0 {
		t.Fatalf("error count after success = %d, want 0", got)
	}
}

func TestNextFallbackExcludesCurrent(t *testing.T) {
	repo := newFakeCredRepo(
		cred("a", "gemini", 1, 0),
		cred("b", "gemini", 2, 0),
	)
	r := newTestRotator(repo)
	ctx := context.Background()

	if _, err := r.Select(ctx, "gemini"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	sel, err := r.NextFallback(ctx, "gemini")
	if err != nil {
		t.Fatalf("NextFallback: %v", err)
	}
	if sel.Credential.ID != "b" {
		t.Fatalf("NextFallback = %q, want b", sel.Credential.ID)
	}

	// With b now current and a the only other credential, exhausting a
	// leaves no fallback.
	if err := repo.update("a", func(c *domain.Credential) { c.ErrorCount = 3 }); err != nil {
		t.Fatal(err)
	}
	r.pools.Invalidate("gemini")
	if _, err := r.NextFallback(ctx, "gemini"); err == nil {
		t.Fatal("NextFallback with no eligible alternative must fail")
	}
}

func TestPinnedBypassesPool(t *testing.T) {
	sel := Pinned("gemini", "user-supplied-key")
	if !sel.Pinned {
		t.Fatal("Pinned selection must be marked pinned")
	}
	if sel.Credential.Secret != "user-supplied-key" {
		t.Fatalf("pinned secret = %q", sel.Credential.Secret)
	}
}
