// Package clients holds the HTTP plumbing shared by the external service
// clients in its subpackages.
package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const maxErrorBodySize = 4 * 1024

// DefaultTimeout bounds a single outbound request.
const DefaultTimeout = 3 * time.Second

// ErrNotConfigured is returned when a client lacks its URL or credentials.
var ErrNotConfigured = errors.New("clients: service not configured")

// ErrNotFound is returned when the upstream reports a missing resource.
var ErrNotFound = errors.New("clients: resource not found")

// StatusError reports an unexpected upstream status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewHTTPClient returns a client with the given overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// TrimBaseURL normalises a configured base URL.
func TrimBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// DoJSON executes req and decodes a 2xx JSON body into out. A 404 maps to
// ErrNotFound; other non-2xx statuses become a *StatusError.
func DoJSON(ctx context.Context, client *http.Client, service string, req *http.Request, out any) error {
	if client == nil {
		client = NewHTTPClient(0)
	}
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}

// Year extracts the year from a YYYY-MM-DD release date.
func Year(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year := 0
	for _, r := range releaseDate[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}
