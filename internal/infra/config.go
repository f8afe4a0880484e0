package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath    string
	StorageBaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Pipeline tuning.
	SceneParallelism  int
	MaxSceneAttempts  int
	ProviderTimeout   time.Duration
	CredentialMaxErrs int
	CredentialPoolTTL time.Duration

	// Adaptive limiter defaults, shared by every provider class.
	LimiterInitialDelay time.Duration
	LimiterMinDelay     time.Duration
	LimiterMaxDelay     time.Duration
	LimiterSuccessRatio float64
	LimiterErrorRatio   float64
	LimiterStreak       int

	HTTPReadTimeout       time.Duration
	HTTPReadHeaderTimeout time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
	RateLimitPerMin       int
	DefaultLocale         string
	AllowedOrigins        []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		SceneParallelism:  getEnvInt("SCENE_PARALLELISM", 1),
		MaxSceneAttempts:  getEnvInt("MAX_SCENE_ATTEMPTS", 3),
		ProviderTimeout:   time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),
		CredentialMaxErrs: getEnvInt("CREDENTIAL_MAX_ERRORS", 3),
		CredentialPoolTTL: time.Second * time.Duration(getEnvInt("CREDENTIAL_POOL_TTL_SECONDS", 30)),

		LimiterInitialDelay: time.Millisecond * time.Duration(getEnvInt("LIMITER_INITIAL_DELAY_MS", 3000)),
		LimiterMinDelay:     time.Millisecond * time.Duration(getEnvInt("LIMITER_MIN_DELAY_MS", 2000)),
		LimiterMaxDelay:     time.Millisecond * time.Duration(getEnvInt("LIMITER_MAX_DELAY_MS", 15000)),
		LimiterSuccessRatio: getEnvFloat("LIMITER_SUCCESS_RATIO", 0.9),
		LimiterErrorRatio:   getEnvFloat("LIMITER_ERROR_RATIO", 1.5),
		LimiterStreak:       getEnvInt("LIMITER_SUCCESS_STREAK", 3),

		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPReadHeaderTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_HEADER_TIMEOUT_SECONDS", 5)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:       getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:         getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins:        splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SceneParallelism < 1 {
		cfg.SceneParallelism = 1
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
