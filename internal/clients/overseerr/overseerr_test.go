package overseerr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/movienight/internal/clients"
)

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/api/v1/search":
			if r.URL.RawQuery != "query=the%20thing&page=1" {
				t.Errorf("unexpected raw query %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"page":1,"results":[{"id":1091,"mediaType":"movie","title":"The Thing","releaseDate":"1982-06-25","posterPath":"/thing.jpg"},{"id":5,"mediaType":"tv","title":"The Thing Show"}]}`))
		case "/api/v1/discover/movies":
			_, _ = w.Write([]byte(`{"page":1,"results":[{"id":1,"title":"Trending"}]}`))
		case "/api/v1/movie/1091":
			_, _ = w.Write([]byte(`{"id":1091,"title":"The Thing","runtime":109,"mediaInfo":{"status":5}}`))
		case "/api/v1/status":
			_, _ = w.Write([]byte(`{"version":"1.33.2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := New(Config{BaseURL: server.URL, APIKey: "key"})

	results, err := client.Search(ctx, "the thing")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1091 || results[0].Year() != 1982 {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].PosterURL() != PosterBaseURL+"/thing.jpg" {
		t.Fatalf("unexpected poster url %q", results[0].PosterURL())
	}

	trending, err := client.Trending(ctx)
	if err != nil || len(trending) != 1 || trending[0].MediaType != "movie" {
		t.Fatalf("unexpected trending %+v (%v)", trending, err)
	}

	movie, err := client.Movie(ctx, 1091)
	if err != nil || movie.Runtime != 109 || movie.MediaInfo == nil || movie.MediaInfo.Status != 5 {
		t.Fatalf("unexpected movie %+v (%v)", movie, err)
	}

	status, err := client.Status(ctx)
	if err != nil || status.Version != "1.33.2" {
		t.Fatalf("unexpected status %+v (%v)", status, err)
	}

	bad := New(Config{BaseURL: server.URL, APIKey: "wrong"})
	var statusErr *clients.StatusError
	if _, err := bad.Status(ctx); !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 status error, got %v", err)
	}

	if _, err := New(Config{}).Search(ctx, "x"); !errors.Is(err, clients.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
