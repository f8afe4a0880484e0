package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/domain"
	"storyreel/internal/providers/genai"
)

// providerkey adds an API key to the rotation pool. Lower priority values
// are tried first; the rotator falls back down the list as keys error out.
func main() {
	var (
		keyFlag      string
		providerFlag string
		priorityFlag int
	)
	flag.StringVar(&keyFlag, "key", "", "API key to store (falls back to GEMINI_API_KEY)")
	flag.StringVar(&providerFlag, "provider", genai.ProviderName, "provider the key belongs to")
	flag.IntVar(&priorityFlag, "priority", 0, "rotation priority, lower is preferred")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = genai.ProviderName
	}
	if provider != genai.ProviderName {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "an API key is required via -key or GEMINI_API_KEY")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
		os.Exit(1)
	}

	cred := &domain.Credential{
		ID:       uuid.NewString(),
		Provider: provider,
		Secret:   key,
		Priority: priorityFlag,
		Active:   true,
	}
	if err := repo.NewCredentialRepository(pool).Insert(ctx, cred); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store %s key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s key stored with priority %d (id %s)\n", provider, priorityFlag, cred.ID)
}
