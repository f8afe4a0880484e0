package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/credentials"
	"storyreel/internal/http/handlers"
	"storyreel/internal/http/httpapi"
	"storyreel/internal/infra"
	"storyreel/internal/pipeline"
	"storyreel/internal/providers/genai"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/scenario"
	"storyreel/internal/providers/tts"
	"storyreel/internal/providers/video"
	"storyreel/internal/ratelimit"
	"storyreel/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	rootCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()

	dbpool, err := infra.NewDBPool(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.EnsureSchema(rootCtx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open artifact store")
	}

	client, err := genai.NewClient(genai.Options{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider client")
	}

	limiters := ratelimit.NewRegistry(ratelimit.Config{
		InitialDelay:  cfg.LimiterInitialDelay,
		MinDelay:      cfg.LimiterMinDelay,
		MaxDelay:      cfg.LimiterMaxDelay,
		SuccessRatio:  cfg.LimiterSuccessRatio,
		ErrorRatio:    cfg.LimiterErrorRatio,
		SuccessStreak: cfg.LimiterStreak,
	}, cfg.CredentialPoolTTL)

	credRepo := repo.NewCredentialRepository(dbpool)
	if seeded, err := credentials.Seed(rootCtx, credRepo, genai.ProviderName, cfg.GeminiAPIKey); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed credential pool")
	} else if seeded {
		logger.Info().Msg("credential pool seeded from GEMINI_API_KEY")
	}
	rotator := credentials.NewRotator(credRepo, logger, cfg.CredentialMaxErrs, cfg.CredentialPoolTTL)

	ctrl := pipeline.NewController(rootCtx, pipeline.Deps{
		Jobs:     repo.NewJobRepository(dbpool),
		Scenes:   repo.NewSceneRepository(dbpool),
		Limiters: limiters,
		Rotator:  rotator,
		Scenario: scenario.NewGeminiGenerator(client),
		Images:   image.NewGeminiGenerator(client),
		Speech:   tts.NewGeminiGenerator(client),
		Videos:   video.NewGeminiComposer(client),
		Store:    store,
		Logger:   logger,
	}, pipeline.Options{
		SceneParallelism: cfg.SceneParallelism,
		MaxAttempts:      cfg.MaxSceneAttempts,
		ProviderTimeout:  cfg.ProviderTimeout,
		DefaultLocale:    cfg.DefaultLocale,
	})

	app := handlers.NewApp(ctrl, dbpool, logger)
	router := httpapi.NewRouter(app, logger, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		ThrottleLimit:  cfg.RateLimitPerMin,
		StaticDir:      cfg.StoragePath,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight generation settle its persisted state before exit.
	stopPipeline()
	ctrl.Wait()
	logger.Info().Msg("server stopped")
}
