// Package tmdb is a rate-limited client for The Movie Database v3 API.
package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/movienight/internal/clients"
)

const (
	// BaseURL is the TMDB v3 API root.
	BaseURL = "https://api.themoviedb.org/3"
	// ImageBaseURL prefixes poster paths.
	ImageBaseURL = "https://image.tmdb.org/t/p/w500"
	// DefaultTimeout bounds one TMDB request.
	DefaultTimeout = 10 * time.Second

	service = "tmdb"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// New constructs a client. RequestsPerSecond <= 0 disables client-side limiting.
func New(cfg Config) *Client {
	base := clients.TrimBaseURL(cfg.BaseURL)
	if base == "" {
		base = BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = clients.NewHTTPClient(DefaultTimeout)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Movie is a TMDB movie as returned by search and detail endpoints.
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
	Overview    string `json:"overview"`
	Runtime     int    `json:"runtime"`
}

// Year returns the release year, or 0.
func (m Movie) Year() int {
	return clients.Year(m.ReleaseDate)
}

// PosterURL returns an absolute poster URL, or "".
func (m Movie) PosterURL() string {
	if m.PosterPath == "" {
		return ""
	}
	return ImageBaseURL + m.PosterPath
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if !c.Configured() {
		return clients.ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb: rate limit wait: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("tmdb: create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	return clients.DoJSON(ctx, c.http, service, req, out)
}

// SearchMovies returns the first page of matches for query.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]Movie, error) {
	var page struct {
		Results []Movie `json:"results"`
	}
	params := url.Values{"query": {query}, "include_adult": {"false"}, "page": {"1"}}
	if err := c.get(ctx, "/search/movie", params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Movie fetches details by id.
func (c *Client) Movie(ctx context.Context, id int) (Movie, error) {
	var movie Movie
	err := c.get(ctx, "/movie/"+strconv.Itoa(id), nil, &movie)
	return movie, err
}
