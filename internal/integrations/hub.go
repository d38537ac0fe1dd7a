// Package integrations owns the external service clients, the breaker
// guarding each of them, and the degrade-to-no-data policy read paths rely on.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/movienight/internal/breaker"
	"github.com/example/movienight/internal/clients"
	"github.com/example/movienight/internal/clients/overseerr"
	"github.com/example/movienight/internal/clients/plex"
	"github.com/example/movienight/internal/clients/tautulli"
	"github.com/example/movienight/internal/clients/tmdb"
	"github.com/example/movienight/internal/logging"
)

// Service names a guarded integration.
type Service string

const (
	ServicePlex      Service = "plex"
	ServiceOverseerr Service = "overseerr"
	ServiceTautulli  Service = "tautulli"
	ServiceTMDB      Service = "tmdb"
)

// Services lists every integration in display order.
var Services = []Service{ServicePlex, ServiceOverseerr, ServiceTautulli, ServiceTMDB}

// ErrUnknownService is returned for a service name outside Services.
var ErrUnknownService = errors.New("integrations: unknown service")

// Settings is the persisted connection configuration.
type Settings struct {
	PlexURL         string
	PlexToken       string
	OverseerrURL    string
	OverseerrAPIKey string
	TautulliURL     string
	TautulliAPIKey  string
	TMDBAPIKey      string
}

// Options configures a Hub.
type Options struct {
	BreakerCooldown       time.Duration
	RequestTimeout        time.Duration
	TMDBTimeout           time.Duration
	TMDBRequestsPerSecond float64
	PlexClientID          string
	PlexProduct           string
	WatchCacheTTL         time.Duration

	// Base URL overrides for plex.tv and TMDB.
	PlexTVBaseURL string
	TMDBBaseURL   string

	Logger        *slog.Logger
	StateListener breaker.StateListener
	Now           func() time.Time
}

// Hub is safe for concurrent use.
type Hub struct {
	opts     Options
	logger   *slog.Logger
	breakers map[Service]*breaker.Breaker
	watched  *watchCache

	mu        sync.RWMutex
	plex      *plex.Client
	overseerr *overseerr.Client
	tautulli  *tautulli.Client
	tmdb      *tmdb.Client
}

// New constructs a hub with unconfigured clients. Call Apply once settings
// are loaded.
func New(opts Options) *Hub {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = clients.DefaultTimeout
	}
	if opts.TMDBTimeout <= 0 {
		opts.TMDBTimeout = tmdb.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		opts:     opts,
		logger:   logger,
		breakers: make(map[Service]*breaker.Breaker, len(Services)),
		watched:  newWatchCache(opts.WatchCacheTTL, 0, opts.Now),
	}
	for _, svc := range Services {
		h.breakers[svc] = breaker.New(string(svc), opts.BreakerCooldown,
			breaker.WithLogger(logger),
			breaker.WithStateListener(opts.StateListener),
			breaker.WithClock(opts.Now),
		)
	}
	h.Apply(Settings{})
	return h
}

// Apply rebuilds every client from settings and drops cached watch answers.
func (h *Hub) Apply(s Settings) {
	httpClient := clients.NewHTTPClient(h.opts.RequestTimeout)
	p := plex.New(plex.Config{
		ServerURL:  s.PlexURL,
		Token:      s.PlexToken,
		ClientID:   h.opts.PlexClientID,
		Product:    h.opts.PlexProduct,
		TVBaseURL:  h.opts.PlexTVBaseURL,
		HTTPClient: httpClient,
	})
	o := overseerr.New(overseerr.Config{BaseURL: s.OverseerrURL, APIKey: s.OverseerrAPIKey, HTTPClient: httpClient})
	t := tautulli.New(tautulli.Config{BaseURL: s.TautulliURL, APIKey: s.TautulliAPIKey, HTTPClient: httpClient})
	m := tmdb.New(tmdb.Config{
		BaseURL:           h.opts.TMDBBaseURL,
		APIKey:            s.TMDBAPIKey,
		RequestsPerSecond: h.opts.TMDBRequestsPerSecond,
		HTTPClient:        clients.NewHTTPClient(h.opts.TMDBTimeout),
	})

	h.mu.Lock()
	h.plex, h.overseerr, h.tautulli, h.tmdb = p, o, t, m
	h.mu.Unlock()
	h.watched.Invalidate()
}

func (h *Hub) clients() (*plex.Client, *overseerr.Client, *tautulli.Client, *tmdb.Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.plex, h.overseerr, h.tautulli, h.tmdb
}

// Configured reports whether svc has the settings it needs.
func (h *Hub) Configured(svc Service) bool {
	p, o, t, m := h.clients()
	switch svc {
	case ServicePlex:
		return p.Configured()
	case ServiceOverseerr:
		return o.Configured()
	case ServiceTautulli:
		return t.Configured()
	case ServiceTMDB:
		return m.Configured()
	}
	return false
}

func (h *Hub) timeoutFor(svc Service) time.Duration {
	if svc == ServiceTMDB {
		return h.opts.TMDBTimeout
	}
	return h.opts.RequestTimeout
}

// guard runs fn through the service breaker with the service timeout.
// Unconfigured services fail fast without touching the breaker.
func guard[T any](ctx context.Context, h *Hub, svc Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !h.Configured(svc) {
		return zero, clients.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeoutFor(svc))
	defer cancel()

	result, err := breaker.Do(ctx, h.breakers[svc], fn)
	if err != nil && !errors.Is(err, breaker.ErrOpen) && !errors.Is(err, context.Canceled) {
		logging.FromContextOr(ctx, h.logger).Warn("integration call failed",
			"service", string(svc),
			"operation", op,
			"error", err,
		)
	}
	return result, err
}

// CreatePlexPIN starts a plex.tv sign-in. Sign-in does not consult the
// server breaker.
func (h *Hub) CreatePlexPIN(ctx context.Context) (plex.PIN, error) {
	p, _, _, _ := h.clients()
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()
	return p.CreatePIN(ctx)
}

// CheckPlexPIN returns the account for an approved PIN, or ok=false while
// approval is pending.
func (h *Hub) CheckPlexPIN(ctx context.Context, id int) (account plex.Account, token string, ok bool, err error) {
	p, _, _, _ := h.clients()
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	token, err = p.CheckPIN(ctx, id)
	if err != nil || token == "" {
		return plex.Account{}, "", false, err
	}
	account, err = p.User(ctx, token)
	if err != nil {
		return plex.Account{}, "", false, fmt.Errorf("fetch plex account: %w", err)
	}
	return account, token, true, nil
}

// PlexOwner returns the account owning the configured server token.
func (h *Hub) PlexOwner(ctx context.Context) (plex.Account, error) {
	return guard(ctx, h, ServicePlex, "owner", func(ctx context.Context) (plex.Account, error) {
		p, _, _, _ := h.clients()
		return p.User(ctx, p.Token())
	})
}

// PlexFriends lists the server owner's friends.
func (h *Hub) PlexFriends(ctx context.Context) ([]plex.Account, error) {
	return guard(ctx, h, ServicePlex, "friends", func(ctx context.Context) ([]plex.Account, error) {
		p, _, _, _ := h.clients()
		return p.Friends(ctx)
	})
}

// SearchPlex searches the Plex library.
func (h *Hub) SearchPlex(ctx context.Context, query string) ([]plex.Movie, error) {
	return guard(ctx, h, ServicePlex, "search", func(ctx context.Context) ([]plex.Movie, error) {
		p, _, _, _ := h.clients()
		return p.Search(ctx, query, 20)
	})
}

// PlexMovie fetches Plex metadata for a rating key.
func (h *Hub) PlexMovie(ctx context.Context, ratingKey string) (plex.Movie, error) {
	return guard(ctx, h, ServicePlex, "metadata", func(ctx context.Context) (plex.Movie, error) {
		p, _, _, _ := h.clients()
		return p.Metadata(ctx, ratingKey)
	})
}

// PlexImageURL resolves a Plex thumb path to a fetchable URL, or "".
func (h *Hub) PlexImageURL(thumb string) string {
	p, _, _, _ := h.clients()
	return p.ImageURL(thumb)
}

// SearchOverseerr searches through Overseerr.
func (h *Hub) SearchOverseerr(ctx context.Context, query string) ([]overseerr.Result, error) {
	return guard(ctx, h, ServiceOverseerr, "search", func(ctx context.Context) ([]overseerr.Result, error) {
		_, o, _, _ := h.clients()
		return o.Search(ctx, query)
	})
}

// TrendingOverseerr returns Overseerr's discovery feed.
func (h *Hub) TrendingOverseerr(ctx context.Context) ([]overseerr.Result, error) {
	return guard(ctx, h, ServiceOverseerr, "trending", func(ctx context.Context) ([]overseerr.Result, error) {
		_, o, _, _ := h.clients()
		return o.Trending(ctx)
	})
}

// OverseerrMovie fetches details by TMDB id through Overseerr.
func (h *Hub) OverseerrMovie(ctx context.Context, tmdbID int) (overseerr.Movie, error) {
	return guard(ctx, h, ServiceOverseerr, "movie", func(ctx context.Context) (overseerr.Movie, error) {
		_, o, _, _ := h.clients()
		return o.Movie(ctx, tmdbID)
	})
}

// SearchTMDB searches TMDB directly.
func (h *Hub) SearchTMDB(ctx context.Context, query string) ([]tmdb.Movie, error) {
	return guard(ctx, h, ServiceTMDB, "search", func(ctx context.Context) ([]tmdb.Movie, error) {
		_, _, _, m := h.clients()
		return m.SearchMovies(ctx, query)
	})
}

// TMDBMovie fetches details by id from TMDB.
func (h *Hub) TMDBMovie(ctx context.Context, id int) (tmdb.Movie, error) {
	return guard(ctx, h, ServiceTMDB, "movie", func(ctx context.Context) (tmdb.Movie, error) {
		_, _, _, m := h.clients()
		return m.Movie(ctx, id)
	})
}

// HasWatched reports whether a Plex user has watched ratingKey. Any failure,
// a missing Plex id, or an unconfigured Tautulli yields false.
func (h *Hub) HasWatched(ctx context.Context, plexUserID, ratingKey string) bool {
	if plexUserID == "" || ratingKey == "" {
		return false
	}
	key := watchCacheKey(plexUserID, ratingKey)
	if watched, ok := h.watched.Get(key); ok {
		return watched
	}
	watched, err := guard(ctx, h, ServiceTautulli, "history", func(ctx context.Context) (bool, error) {
		_, _, t, _ := h.clients()
		return t.HasWatched(ctx, plexUserID, ratingKey)
	})
	if err != nil {
		return false
	}
	h.watched.Store(key, watched)
	return watched
}

// Status reports every breaker for operators.
func (h *Hub) Status() map[Service]breaker.Status {
	out := make(map[Service]breaker.Status, len(Services))
	for _, svc := range Services {
		out[svc] = h.breakers[svc].Status(h.Configured(svc))
	}
	return out
}

// Retry force-closes the breaker for svc.
func (h *Hub) Retry(svc Service) error {
	b, ok := h.breakers[svc]
	if !ok {
		return ErrUnknownService
	}
	b.Reset()
	if svc == ServiceTautulli {
		h.watched.Invalidate()
	}
	return nil
}

// Probe checks every configured service once, feeding the breakers.
func (h *Hub) Probe(ctx context.Context) {
	_, _ = guard(ctx, h, ServicePlex, "probe", func(ctx context.Context) ([]plex.Section, error) {
		p, _, _, _ := h.clients()
		return p.Sections(ctx)
	})
	_, _ = guard(ctx, h, ServiceOverseerr, "probe", func(ctx context.Context) (overseerr.Status, error) {
		_, o, _, _ := h.clients()
		return o.Status(ctx)
	})
	_, _ = guard(ctx, h, ServiceTautulli, "probe", func(ctx context.Context) (struct{}, error) {
		_, _, t, _ := h.clients()
		return struct{}{}, t.Ping(ctx)
	})
}
