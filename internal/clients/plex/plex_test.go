package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/movienight/internal/clients"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Product") == "" {
			t.Errorf("missing X-Plex-Product header on %s", r.URL.Path)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/pins":
			if r.URL.Query().Get("strong") != "true" {
				t.Errorf("expected strong pin request")
			}
			_, _ = w.Write([]byte(`{"id":42,"code":"abcd"}`))
		case r.URL.Path == "/api/v2/pins/42":
			_, _ = w.Write([]byte(`{"id":42,"code":"abcd","authToken":"user-token"}`))
		case r.URL.Path == "/api/v2/user":
			if r.Header.Get("X-Plex-Token") != "user-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":7,"uuid":"u7","username":"alice","title":"Alice","email":"a@example.com"}`))
		case r.URL.Path == "/api/v2/friends":
			_, _ = w.Write([]byte(`[{"id":8,"username":"bob"}]`))
		case r.URL.Path == "/library/sections":
			_, _ = w.Write([]byte(`{"MediaContainer":{"Directory":[{"key":"1","type":"movie","title":"Movies"},{"key":"2","type":"show","title":"TV"}]}}`))
		case r.URL.Path == "/hub/search":
			if r.URL.Query().Get("query") != "alien" {
				t.Errorf("unexpected query %q", r.URL.Query().Get("query"))
			}
			_, _ = w.Write([]byte(`{"MediaContainer":{"Hub":[{"type":"movie","Metadata":[{"ratingKey":"100","type":"movie","title":"Alien","year":1979}]},{"type":"show","Metadata":[{"ratingKey":"200","type":"show","title":"Alien Show"}]}]}}`))
		case r.URL.Path == "/library/metadata/100":
			_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"100","type":"movie","title":"Alien","year":1979,"duration":7020000,"thumb":"/library/metadata/100/thumb/1","Guid":[{"id":"imdb://tt0078748"},{"id":"tmdb://348"}]}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_PINFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(Config{TVBaseURL: server.URL, ClientID: "client-1", Product: "Movie Night"})
	ctx := context.Background()

	pin, err := client.CreatePIN(ctx)
	if err != nil {
		t.Fatalf("CreatePIN returned error: %v", err)
	}
	if pin.ID != 42 || pin.Code != "abcd" {
		t.Fatalf("unexpected pin %+v", pin)
	}
	if !strings.Contains(pin.AuthURL, "code=abcd") || !strings.Contains(pin.AuthURL, "clientID=client-1") {
		t.Fatalf("unexpected auth url %q", pin.AuthURL)
	}

	token, err := client.CheckPIN(ctx, 42)
	if err != nil || token != "user-token" {
		t.Fatalf("expected user-token, got %q (%v)", token, err)
	}

	account, err := client.User(ctx, token)
	if err != nil {
		t.Fatalf("User returned error: %v", err)
	}
	if account.ID != 7 || account.DisplayName() != "Alice" {
		t.Fatalf("unexpected account %+v", account)
	}
}

func TestClient_Library(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := New(Config{ServerURL: server.URL + "/", Token: "owner", TVBaseURL: server.URL})
	ctx := context.Background()

	friends, err := client.Friends(ctx)
	if err != nil || len(friends) != 1 || friends[0].Username != "bob" {
		t.Fatalf("unexpected friends %+v (%v)", friends, err)
	}

	sections, err := client.Sections(ctx)
	if err != nil || len(sections) != 2 {
		t.Fatalf("unexpected sections %+v (%v)", sections, err)
	}

	movies, err := client.Search(ctx, "alien", 10)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(movies) != 1 || movies[0].RatingKey != "100" {
		t.Fatalf("expected only the movie hub result, got %+v", movies)
	}

	movie, err := client.Metadata(ctx, "100")
	if err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}
	if movie.TMDBID() != 348 || movie.RuntimeMinutes() != 117 {
		t.Fatalf("unexpected metadata %+v", movie)
	}
	if got := client.ImageURL(movie.Thumb); !strings.HasSuffix(got, "/library/metadata/100/thumb/1?X-Plex-Token=owner") {
		t.Fatalf("unexpected image url %q", got)
	}

	if _, err := client.Metadata(ctx, "999"); !errors.Is(err, clients.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := New(Config{})
	if client.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := client.Sections(context.Background()); !errors.Is(err, clients.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
