// Package overseerr searches and inspects movies through an Overseerr
// instance.
package overseerr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/movienight/internal/clients"
)

const service = "overseerr"

// PosterBaseURL prefixes Overseerr's TMDB poster paths.
const PosterBaseURL = "https://image.tmdb.org/t/p/w500"

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New constructs a client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = clients.NewHTTPClient(0)
	}
	return &Client{
		baseURL: clients.TrimBaseURL(cfg.BaseURL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
	}
}

// Configured reports whether a URL and API key are set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// Result is a movie search or discovery hit.
type Result struct {
	ID          int    `json:"id"`
	MediaType   string `json:"mediaType"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	PosterPath  string `json:"posterPath"`
	Overview    string `json:"overview"`
}

// Year returns the release year, or 0.
func (r Result) Year() int {
	return clients.Year(r.ReleaseDate)
}

// PosterURL returns an absolute poster URL, or "".
func (r Result) PosterURL() string {
	return posterURL(r.PosterPath)
}

// Movie is the detail view of one movie.
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	PosterPath  string `json:"posterPath"`
	Overview    string `json:"overview"`
	Runtime     int    `json:"runtime"`
	MediaInfo   *struct {
		Status int `json:"status"`
	} `json:"mediaInfo,omitempty"`
}

// PosterURL returns an absolute poster URL, or "".
func (m Movie) PosterURL() string {
	return posterURL(m.PosterPath)
}

// Status is the instance status.
type Status struct {
	Version string `json:"version"`
}

type resultsPage struct {
	Page    int      `json:"page"`
	Results []Result `json:"results"`
}

func posterURL(path string) string {
	if path == "" {
		return ""
	}
	return PosterBaseURL + path
}

func (c *Client) get(ctx context.Context, path, rawQuery string, out any) error {
	if !c.Configured() {
		return clients.ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("overseerr: create request: %w", err)
	}
	req.URL.RawQuery = rawQuery
	req.Header.Set("X-Api-Key", c.apiKey)
	return clients.DoJSON(ctx, c.http, service, req, out)
}

// Search returns movie results for query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	// Overseerr rejects '+' for spaces, so encode them as %20.
	encoded := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	var page resultsPage
	if err := c.get(ctx, "/api/v1/search", "query="+encoded+"&page=1", &page); err != nil {
		return nil, err
	}
	return moviesOnly(page.Results), nil
}

// Trending returns the discovery feed for movies.
func (c *Client) Trending(ctx context.Context) ([]Result, error) {
	var page resultsPage
	if err := c.get(ctx, "/api/v1/discover/movies", "page=1", &page); err != nil {
		return nil, err
	}
	for i := range page.Results {
		if page.Results[i].MediaType == "" {
			page.Results[i].MediaType = "movie"
		}
	}
	return page.Results, nil
}

// Movie fetches details by TMDB id.
func (c *Client) Movie(ctx context.Context, tmdbID int) (Movie, error) {
	var movie Movie
	err := c.get(ctx, "/api/v1/movie/"+strconv.Itoa(tmdbID), "", &movie)
	return movie, err
}

// Status checks the instance is reachable and the key accepted.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/api/v1/status", "", &status)
	return status, err
}

func moviesOnly(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.MediaType == "movie" {
			out = append(out, r)
		}
	}
	return out
}
