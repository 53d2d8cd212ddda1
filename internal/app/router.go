package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/regwatch/regwatch/internal/auth"
	compliancehttp "github.com/regwatch/regwatch/internal/compliance/http"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/observability"
	"github.com/regwatch/regwatch/internal/platform/httpx"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
	"github.com/regwatch/regwatch/jobs"
	"github.com/regwatch/regwatch/web"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	ListHandler      *compliancehttp.Handler
	JobHandler       *jobs.Handler
	Backend          Pinger
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with regwatch defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if params.Backend != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Backend.Ping(ctx); err != nil {
				status["backend"] = err.Error()
				httpx.JSON(w, http.StatusServiceUnavailable, status)
				return
			}
			status["backend"] = "ok"
		}
		httpx.JSON(w, http.StatusOK, status)
	})

	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		data := view.Page(r, params.CSRFManager, "RegWatch", nil)
		if err := params.Templates.Render(w, "pages/welcome.html", data); err != nil {
			params.Logger.Error("render welcome", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).IsAuthenticated() {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.ListHandler != nil {
			params.ListHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		page := view.Page(r, params.CSRFManager, "Not found", view.ErrorPage{Status: http.StatusNotFound, Message: "Page not found"})
		if err := params.Templates.RenderStatus(w, http.StatusNotFound, "pages/error.html", page); err != nil {
			params.Logger.Error("render not found", slog.Any("error", err))
		}
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
