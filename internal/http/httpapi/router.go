package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyreel/internal/http/handlers"
	"storyreel/internal/infra"
	"storyreel/internal/middleware"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	DefaultLocale  string
	ThrottleLimit  int
	ThrottleWindow time.Duration
	// StaticDir, when set, is served under /static/ so generated artifact
	// URLs resolve without a separate file server.
	StaticDir string
}

// NewRouter wires the job pipeline endpoints. All generation endpoints sit
// behind the user-identity middleware; health does not.
func NewRouter(app *handlers.App, logger infra.Logger, opts Options) http.Handler {
	if opts.ThrottleLimit <= 0 {
		opts.ThrottleLimit = 60
	}
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = time.Minute
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Throttle(opts.ThrottleLimit, opts.ThrottleWindow),
	)

	r.Get("/v1/healthz", app.Health)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(
			middleware.UserContext,
			middleware.Locale(opts.DefaultLocale),
		)
		r.Post("/", app.JobsCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/progress", app.JobsProgress)
			r.Get("/checkpoint", app.JobsCheckpoint)
			r.Post("/stages/{stage}", app.StagesStart)
			r.Post("/resume", app.JobsResume)
			r.Post("/retry", app.JobsRetry)
			r.Post("/scenes/{sceneID}/regenerate", app.ScenesRegenerate)
			r.Delete("/", app.JobsDelete)
		})
	})

	return r
}
