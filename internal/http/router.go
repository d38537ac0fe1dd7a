package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the handlers and cross-cutting settings for NewRouter.
// Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Groups      *GroupHandler
	Schedules   *ScheduleHandler
	MovieNights *MovieNightHandler
	Nominations *NominationHandler
	Invites     *InviteHandler
	Admin       *AdminHandler

	Sessions SessionValidator

	AllowedOrigins     []string
	RateLimitPerMinute int
	SecureCookies      bool
	Logger             *slog.Logger

	// Health reports readiness for /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics())
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
			ExposedHeaders:   []string{"X-Session-Token", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req.Context()); err != nil {
				responder.loggerFor(req.Context()).WarnContext(req.Context(), "health check failed", "error", err)
				responder.writeJSON(req.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(req.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			api.Use(httprate.Limit(
				cfg.RateLimitPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					responder.writeJSON(req.Context(), w, http.StatusTooManyRequests, errorResponse{
						ErrorCode:         "RATE_LIMITED",
						Message:           statusMessage(http.StatusTooManyRequests),
						RetryAfterSeconds: 60,
					})
				}),
			))
		}
		api.Use(CSRF(cookieSettings{secure: cfg.SecureCookies}, logger))

		// Public: sign-in and invite redemption.
		if cfg.Auth != nil {
			api.Post("/auth/plex/pin", cfg.Auth.StartPlexLogin)
			api.Get("/auth/plex/pin/{id}", cfg.Auth.PollPlexLogin)
			api.Post("/auth/local", cfg.Auth.LocalLogin)
			api.Post("/auth/logout", cfg.Auth.Logout)
		}
		if cfg.Invites != nil {
			api.Get("/invites/{id}", cfg.Invites.Validate)
			api.Post("/invites/{id}/join", cfg.Invites.Join)
		}

		api.Group(func(authed chi.Router) {
			authed.Use(RequireSession(cfg.Sessions, logger))

			if cfg.Auth != nil {
				authed.Get("/auth/me", cfg.Auth.Me)
			}

			if cfg.Users != nil {
				authed.Get("/users", cfg.Users.List)
				authed.Post("/users", cfg.Users.Create)
				authed.Put("/users/{id}/admin", cfg.Users.SetAdmin)
				authed.Delete("/users/{id}", cfg.Users.Delete)
			}

			if cfg.Groups != nil {
				authed.Get("/groups", cfg.Groups.List)
				authed.Post("/groups", cfg.Groups.Create)
				authed.Get("/groups/{id}", cfg.Groups.Get)
				authed.Put("/groups/{id}", cfg.Groups.Update)
				authed.Delete("/groups/{id}", cfg.Groups.Delete)
				authed.Post("/groups/{id}/members", cfg.Groups.AddMember)
				authed.Put("/groups/{id}/members/{userId}", cfg.Groups.UpdateMember)
				authed.Delete("/groups/{id}/members/{userId}", cfg.Groups.RemoveMember)
			}

			if cfg.Schedules != nil {
				authed.Get("/groups/{id}/schedules", cfg.Schedules.List)
				authed.Post("/groups/{id}/schedules", cfg.Schedules.Create)
				authed.Put("/schedules/{id}", cfg.Schedules.Update)
				authed.Delete("/schedules/{id}", cfg.Schedules.Delete)
			}

			if cfg.MovieNights != nil {
				authed.Get("/groups/{id}/movie-nights", cfg.MovieNights.List)
				authed.Post("/groups/{id}/movie-nights", cfg.MovieNights.Create)
				authed.Get("/movie-nights/{id}", cfg.MovieNights.Get)
				authed.Put("/movie-nights/{id}/host", cfg.MovieNights.SetHost)
				authed.Post("/movie-nights/{id}/cancel", cfg.MovieNights.Cancel)
				authed.Put("/movie-nights/{id}/attendance", cfg.MovieNights.SetAttendance)
				authed.Post("/movie-nights/{id}/decide", cfg.MovieNights.Decide)
				authed.Delete("/movie-nights/{id}/decide", cfg.MovieNights.UndoDecision)
			}

			if cfg.Nominations != nil {
				authed.Post("/movie-nights/{id}/nominations", cfg.Nominations.Nominate)
				authed.Delete("/nominations/{id}", cfg.Nominations.Delete)
				authed.Post("/nominations/{id}/vote", cfg.Nominations.Vote)
				authed.Delete("/nominations/{id}/vote", cfg.Nominations.Unvote)
				authed.Post("/nominations/{id}/block", cfg.Nominations.Block)
				authed.Delete("/nominations/{id}/block", cfg.Nominations.Unblock)
				authed.Get("/search/movies", cfg.Nominations.Search)
			}

			if cfg.Invites != nil {
				authed.Post("/movie-nights/{id}/invites", cfg.Invites.Create)
				authed.Get("/movie-nights/{id}/invites", cfg.Invites.List)
				authed.Delete("/invites/{id}", cfg.Invites.Revoke)
			}

			if cfg.Admin != nil {
				authed.Get("/settings", cfg.Admin.GetSettings)
				authed.Put("/settings", cfg.Admin.UpdateSettings)
				authed.Get("/status", cfg.Admin.ListStatus)
				authed.Post("/status/{service}/retry", cfg.Admin.RetryService)
				authed.Get("/images", cfg.Admin.Image)
				authed.Delete("/images", cfg.Admin.ClearImages)
			}
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// pathParam returns the trimmed chi URL parameter and whether it is non-empty.
func pathParam(r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	return value, value != ""
}
