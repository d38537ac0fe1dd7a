package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/movienight/internal/application"
)

type sessionStub struct {
	principals map[string]application.Principal
	err        error
}

func (s sessionStub) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return application.Principal{}, application.ErrSessionRevoked
	}
	return p, nil
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(p.UserID))
	})
}

func TestRequireSession(t *testing.T) {
	validator := sessionStub{principals: map[string]application.Principal{"tok": {UserID: "alice"}}}
	handler := RequireSession(validator, nil)(principalEcho())

	t.Run("missing credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.ErrorCode != "AUTH_REQUIRED" {
			t.Fatalf("expected AUTH_REQUIRED, got %q", body.ErrorCode)
		}
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
			t.Fatalf("expected alice, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
			t.Fatalf("expected alice, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("revoked token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "stale"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeErrorBody(t, rec); body.ErrorCode != "AUTH_SESSION_EXPIRED" {
			t.Fatalf("expected AUTH_SESSION_EXPIRED, got %q", body.ErrorCode)
		}
	})
}

func TestCSRF(t *testing.T) {
	handler := CSRF(cookieSettings{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("safe request issues a cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected pass through, got %d", rec.Code)
		}
		var issued *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == csrfCookieName {
				issued = c
			}
		}
		if issued == nil || issued.Value == "" || issued.HttpOnly {
			t.Fatalf("expected a readable csrf cookie, got %+v", issued)
		}
	})

	t.Run("safe request keeps an existing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Set-Cookie"); got != "" {
			t.Fatalf("expected no new cookie, got %q", got)
		}
	})

	tests := []struct {
		name   string
		cookie string
		header string
		bearer bool
		status int
	}{
		{name: "missing header", cookie: "abc", status: http.StatusForbidden},
		{name: "missing cookie", header: "abc", status: http.StatusForbidden},
		{name: "mismatch", cookie: "abc", header: "abd", status: http.StatusForbidden},
		{name: "match", cookie: "abc", header: "abc", status: http.StatusNoContent},
		{name: "bearer exempt", bearer: true, status: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/groups", strings.NewReader("{}"))
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set(csrfHeaderName, tc.header)
			}
			if tc.bearer {
				req.Header.Set("Authorization", "Bearer tok")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusForbidden {
				if body := decodeErrorBody(t, rec); body.ErrorCode != "CSRF_INVALID" {
					t.Fatalf("expected CSRF_INVALID, got %q", body.ErrorCode)
				}
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := clientIP(req); got != "10.0.0.7" {
		t.Fatalf("expected host only, got %q", got)
	}
	req.RemoteAddr = "10.0.0.8"
	if got := clientIP(req); got != "10.0.0.8" {
		t.Fatalf("expected bare address, got %q", got)
	}
}
