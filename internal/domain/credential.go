package domain

import "time"

// Credential is one usable API credential in a provider's rotation pool.
// Lower priority values are preferred.
type Credential struct {
	ID          string
	Provider    string
	Secret      string
	Priority    int
	Active      bool
	ErrorCount  int
	LastUsedAt  *time.Time
	LastErrorAt *time.Time
	CreatedAt   time.Time
}
