// Package tautulli looks up Plex watch history through Tautulli.
package tautulli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/example/movienight/internal/clients"
)

const service = "tautulli"

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

// envelope is Tautulli's standard response wrapper.
type envelope[T any] struct {
	Response struct {
		Result  string `json:"result"`
		Message string `json:"message"`
		Data    T      `json:"data"`
	} `json:"response"`
}

type history struct {
	RecordsFiltered int `json:"recordsFiltered"`
	Data            []json.RawMessage `json:"data"`
}

func call[T any](ctx context.Context, c *Client, cmd string, params url.Values) (T, error) {
	var zero T
	if !c.Configured() {
		return zero, clients.ErrNotConfigured
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2", http.NoBody)
	if err != nil {
		return zero, fmt.Errorf("tautulli: create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()

	var env envelope[T]
	if err := clients.DoJSON(ctx, c.http, service, req, &env); err != nil {
		return zero, err
	}
	if env.Response.Result != "success" {
		return zero, fmt.Errorf("tautulli: %s failed: %s", cmd, env.Response.Message)
	}
	return env.Response.Data, nil
}

// HasWatched reports whether the Plex user has any history for ratingKey.
func (c *Client) HasWatched(ctx context.Context, plexUserID, ratingKey string) (bool, error) {
	params := url.Values{}
	params.Set("user_id", plexUserID)
	params.Set("rating_key", ratingKey)
	params.Set("length", strconv.Itoa(1))

	h, err := call[history](ctx, c, "get_history", params)
	if err != nil {
		return false, err
	}
	return h.RecordsFiltered > 0 || len(h.Data) > 0, nil
}

// Ping checks the instance is reachable and the key accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := call[json.RawMessage](ctx, c, "status", nil)
	return err
}
