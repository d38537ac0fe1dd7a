package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("Accept") != "application/json" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"name":"plex"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer server.Close()

	ctx := context.Background()

	t.Run("decodes success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, server.URL+"/ok", nil)
		var out struct {
			Name string `json:"name"`
		}
		if err := DoJSON(ctx, server.Client(), "test", req, &out); err != nil {
			t.Fatalf("DoJSON returned error: %v", err)
		}
		if out.Name != "plex" {
			t.Fatalf("expected plex, got %q", out.Name)
		}
	})

	t.Run("maps 404", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, server.URL+"/missing", nil)
		if err := DoJSON(ctx, server.Client(), "test", req, nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reports other statuses", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, server.URL+"/fail", nil)
		err := DoJSON(ctx, server.Client(), "test", req, nil)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway || statusErr.Body != "boom" {
			t.Fatalf("expected 502 status error, got %v", err)
		}
	})
}

func TestYear(t *testing.T) {
	if got := Year("1999-03-31"); got != 1999 {
		t.Fatalf("expected 1999, got %d", got)
	}
	if got := Year(""); got != 0 {
		t.Fatalf("expected 0 for empty date, got %d", got)
	}
}
