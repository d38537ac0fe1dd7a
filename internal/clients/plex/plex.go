// Package plex talks to plex.tv for sign-in and friends, and to a Plex Media
// Server for library browsing and metadata.
package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/movienight/internal/clients"
)

const (
	// TVBaseURL is the plex.tv API root.
	TVBaseURL = "https://plex.tv"
	// AuthAppURL is where users approve a PIN.
	AuthAppURL = "https://app.plex.tv/auth#"

	service = "plex"
)

// Config configures a Client.
type Config struct {
	ServerURL  string
	Token      string
	ClientID   string
	Product    string
	TVBaseURL  string
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	serverURL string
	token     string
	clientID  string
	product   string
	tvBaseURL string
	http      *http.Client
}

// New constructs a client. Server calls need ServerURL and Token; PIN sign-in
// only needs ClientID.
func New(cfg Config) *Client {
	tv := clients.TrimBaseURL(cfg.TVBaseURL)
	if tv == "" {
		tv = TVBaseURL
	}
	product := cfg.Product
	if product == "" {
		product = "Movie Night"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = clients.NewHTTPClient(0)
	}
	return &Client{
		serverURL: clients.TrimBaseURL(cfg.ServerURL),
		token:     strings.TrimSpace(cfg.Token),
		clientID:  cfg.ClientID,
		product:   product,
		tvBaseURL: tv,
		http:      httpClient,
	}
}

// Configured reports whether server calls can be made.
func (c *Client) Configured() bool {
	return c != nil && c.serverURL != "" && c.token != ""
}

// PIN is a sign-in PIN awaiting approval.
type PIN struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	AuthURL string `json:"authUrl"`
}

type pinResponse struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	AuthToken string `json:"authToken"`
}

// Account is a plex.tv account.
type Account struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
}

// DisplayName prefers the account title over the username.
func (a Account) DisplayName() string {
	if a.Title != "" {
		return a.Title
	}
	return a.Username
}

// Section is a library section on the server.
type Section struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Movie is library metadata for one movie.
type Movie struct {
	RatingKey string `json:"ratingKey"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	Summary   string `json:"summary"`
	Thumb     string `json:"thumb"`
	// Duration is in milliseconds.
	Duration int64  `json:"duration"`
	GUIDs    []guid `json:"Guid"`
}

type guid struct {
	ID string `json:"id"`
}

// TMDBID returns the TMDB id from the movie's external guids, or 0.
func (m Movie) TMDBID() int {
	for _, g := range m.GUIDs {
		if rest, ok := strings.CutPrefix(g.ID, "tmdb://"); ok {
			if id, err := strconv.Atoi(rest); err == nil {
				return id
			}
		}
	}
	return 0
}

// RuntimeMinutes converts the duration to whole minutes.
func (m Movie) RuntimeMinutes() int {
	return int(m.Duration / 60000)
}

type mediaContainer struct {
	MediaContainer struct {
		Directory []Section `json:"Directory"`
		Metadata  []Movie   `json:"Metadata"`
		Hub       []struct {
			Type     string  `json:"type"`
			Metadata []Movie `json:"Metadata"`
		} `json:"Hub"`
	} `json:"MediaContainer"`
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Product", c.product)
	if c.clientID != "" {
		req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	}
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
}

func (c *Client) tvRequest(ctx context.Context, method, path, token string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.tvBaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("plex: create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	c.setHeaders(req, token)
	return clients.DoJSON(ctx, c.http, service, req, out)
}

func (c *Client) serverRequest(ctx context.Context, path string, query url.Values, out any) error {
	if !c.Configured() {
		return clients.ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("plex: create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	c.setHeaders(req, c.token)
	return clients.DoJSON(ctx, c.http, service, req, out)
}

// CreatePIN requests a new sign-in PIN.
func (c *Client) CreatePIN(ctx context.Context) (PIN, error) {
	var resp pinResponse
	if err := c.tvRequest(ctx, http.MethodPost, "/api/v2/pins", "", url.Values{"strong": {"true"}}, &resp); err != nil {
		return PIN{}, err
	}
	return PIN{ID: resp.ID, Code: resp.Code, AuthURL: c.AuthURL(resp.Code)}, nil
}

// AuthURL is the approval page for a PIN code.
func (c *Client) AuthURL(code string) string {
	params := url.Values{}
	params.Set("clientID", c.clientID)
	params.Set("code", code)
	params.Set("context[device][product]", c.product)
	return AuthAppURL + "?" + params.Encode()
}

// CheckPIN returns the auth token once the PIN has been approved, or "".
func (c *Client) CheckPIN(ctx context.Context, id int) (string, error) {
	var resp pinResponse
	if err := c.tvRequest(ctx, http.MethodGet, "/api/v2/pins/"+strconv.Itoa(id), "", nil, &resp); err != nil {
		return "", err
	}
	return resp.AuthToken, nil
}

// User returns the account owning token.
func (c *Client) User(ctx context.Context, token string) (Account, error) {
	var account Account
	err := c.tvRequest(ctx, http.MethodGet, "/api/v2/user", token, nil, &account)
	return account, err
}

// Friends lists the server owner's friends.
func (c *Client) Friends(ctx context.Context) ([]Account, error) {
	if c.token == "" {
		return nil, clients.ErrNotConfigured
	}
	var friends []Account
	err := c.tvRequest(ctx, http.MethodGet, "/api/v2/friends", c.token, nil, &friends)
	return friends, err
}

// Sections lists the server's library sections.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var resp mediaContainer
	if err := c.serverRequest(ctx, "/library/sections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Directory, nil
}

// Movies lists every movie in a section.
func (c *Client) Movies(ctx context.Context, sectionKey string) ([]Movie, error) {
	var resp mediaContainer
	path := "/library/sections/" + url.PathEscape(sectionKey) + "/all"
	if err := c.serverRequest(ctx, path, url.Values{"type": {"1"}}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// Search finds movies across the server's hubs.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Movie, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp mediaContainer
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}}
	if err := c.serverRequest(ctx, "/hub/search", params, &resp); err != nil {
		return nil, err
	}
	var movies []Movie
	for _, hub := range resp.MediaContainer.Hub {
		for _, m := range hub.Metadata {
			if m.Type == "movie" {
				movies = append(movies, m)
			}
		}
	}
	return movies, nil
}

// Metadata fetches one item by rating key.
func (c *Client) Metadata(ctx context.Context, ratingKey string) (Movie, error) {
	var resp mediaContainer
	if err := c.serverRequest(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil, &resp); err != nil {
		return Movie{}, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return Movie{}, clients.ErrNotFound
	}
	return resp.MediaContainer.Metadata[0], nil
}

// ImageURL resolves a server-relative thumb path into a fetchable URL.
func (c *Client) ImageURL(thumb string) string {
	if thumb == "" || !c.Configured() {
		return ""
	}
	u, err := url.Parse(c.serverURL + thumb)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("X-Plex-Token", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Token returns the configured server token.
func (c *Client) Token() string {
	return c.token
}
