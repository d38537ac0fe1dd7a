package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/movienight/internal/application"
)

type nominationServiceStub struct {
	lastPrincipal application.Principal
	lastID        string
	voteErr       error
}

func (s *nominationServiceStub) Nominate(_ context.Context, p application.Principal, nightID string, input application.NominationInput) (application.Nomination, error) {
	s.lastPrincipal, s.lastID = p, nightID
	return application.Nomination{ID: "nom-1", MovieNightID: nightID, Title: input.Title}, nil
}

func (s *nominationServiceStub) DeleteNomination(_ context.Context, p application.Principal, id string) error {
	s.lastPrincipal, s.lastID = p, id
	return nil
}

func (s *nominationServiceStub) Vote(_ context.Context, p application.Principal, id string) (application.VoteResult, error) {
	s.lastPrincipal, s.lastID = p, id
	if s.voteErr != nil {
		return application.VoteResult{}, s.voteErr
	}
	return application.VoteResult{NominationID: id, VoteCount: 1, VotesUsed: 1, VotesRemaining: 2}, nil
}

func (s *nominationServiceStub) Unvote(_ context.Context, p application.Principal, id string) (application.VoteResult, error) {
	s.lastPrincipal, s.lastID = p, id
	return application.VoteResult{NominationID: id, VotesRemaining: 3}, nil
}

func (s *nominationServiceStub) Block(context.Context, application.Principal, string) error {
	return nil
}

func (s *nominationServiceStub) Unblock(context.Context, application.Principal, string) error {
	return nil
}

type inviteServiceStub struct {
	joinedToken string
	joinedIP    string
	revokedID   string
}

func (s *inviteServiceStub) CreateInvite(_ context.Context, _ application.Principal, nightID string, input application.CreateInviteInput) (application.Invite, error) {
	return application.Invite{ID: "inv-1", Token: "link", MovieNightID: nightID, CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}, nil
}

func (s *inviteServiceStub) ListInvites(context.Context, application.Principal, string) ([]application.Invite, error) {
	return nil, nil
}

func (s *inviteServiceStub) RevokeInvite(_ context.Context, _ application.Principal, inviteID string) error {
	s.revokedID = inviteID
	return nil
}

func (s *inviteServiceStub) ValidateInvite(_ context.Context, token, pin, _ string) (application.InviteSummary, error) {
	switch {
	case token == "expired":
		return application.InviteSummary{}, application.ErrGone
	case token == "pinned" && pin == "":
		return application.InviteSummary{RequiresPIN: true}, nil
	}
	return application.InviteSummary{MovieNightID: "n1", GroupName: "Friday Club", NominationCount: 2}, nil
}

func (s *inviteServiceStub) JoinInvite(_ context.Context, token string, input application.JoinInput, clientIP string) (application.JoinResult, error) {
	s.joinedToken, s.joinedIP = token, clientIP
	return application.JoinResult{
		User:    application.User{ID: "guest-1", DisplayName: input.DisplayName},
		Session: application.Session{MovieNightID: "n1", IsLocalInvite: true, ExpiresAt: time.Now().Add(time.Hour)},
		Cookie:  "signed-guest-token",
		Summary: application.InviteSummary{MovieNightID: "n1"},
	}, nil
}

type routerFixture struct {
	handler     http.Handler
	nominations *nominationServiceStub
	invites     *inviteServiceStub
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	nominations := &nominationServiceStub{}
	invites := &inviteServiceStub{}
	handler := NewRouter(RouterConfig{
		Nominations: NewNominationHandler(nominations, nil, nil),
		Invites:     NewInviteHandler(invites, false, nil),
		Sessions:    sessionStub{principals: map[string]application.Principal{"tok": {UserID: "alice"}}},
		Health:      func(context.Context) error { return nil },
	})
	return routerFixture{handler: handler, nominations: nominations, invites: invites}
}

// browserRequest builds a request carrying the session and csrf cookies a
// signed-in browser would send.
func browserRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
	req.Header.Set(csrfHeaderName, "csrf")
	return req
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("expected healthy response, got %d %s", rec.Code, rec.Body.String())
	}

	failing := NewRouter(RouterConfig{Health: func(context.Context) error { return errors.New("db down") }})
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRouter_Vote(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, browserRequest(http.MethodPost, "/api/nominations/nom-9/vote", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var body voteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.NominationID != "nom-9" || body.VotesRemaining != 2 {
		t.Fatalf("unexpected vote response %+v", body)
	}
	if f.nominations.lastPrincipal.UserID != "alice" || f.nominations.lastID != "nom-9" {
		t.Fatalf("expected alice voting on nom-9, got %+v %q", f.nominations.lastPrincipal, f.nominations.lastID)
	}

	f.nominations.voteErr = &application.StateError{Message: "used all your votes"}
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, browserRequest(http.MethodPost, "/api/nominations/nom-9/vote", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got.Message != "used all your votes" {
		t.Fatalf("expected state message, got %q", got.Message)
	}
}

func TestRouter_RequiresSessionAndCSRF(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/nominations/nom-9/vote", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
	req.Header.Set(csrfHeaderName, "csrf")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/nominations/nom-9/vote", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok"})
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}
	if f.nominations.lastID != "" {
		t.Fatalf("expected the service not to be called")
	}
}

func TestRouter_Invites(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("validate is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invites/link", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body inviteSummaryDTO
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.MovieNightID != "n1" || body.GroupName != "Friday Club" || body.RequiresPIN {
			t.Fatalf("unexpected summary %+v", body)
		}
	})

	t.Run("pin required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invites/pinned", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"requiresPin":true`) {
			t.Fatalf("expected requiresPin, got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("expired", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invites/expired", nil))
		if rec.Code != http.StatusGone {
			t.Fatalf("expected 410, got %d", rec.Code)
		}
	})

	t.Run("join sets the session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/invites/link/join", strings.NewReader(`{"displayName":"Visitor"}`))
		req.RemoteAddr = "10.1.2.3:4000"
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
		req.Header.Set(csrfHeaderName, "csrf")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
		}
		var session *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionCookieName {
				session = c
			}
		}
		if session == nil || session.Value != "signed-guest-token" || !session.HttpOnly {
			t.Fatalf("expected guest session cookie, got %+v", session)
		}
		if f.invites.joinedToken != "link" || f.invites.joinedIP != "10.1.2.3" {
			t.Fatalf("unexpected join call token=%q ip=%q", f.invites.joinedToken, f.invites.joinedIP)
		}
	})

	t.Run("revoke needs a session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/invites/inv-1", nil)
		req.Header.Set("Authorization", "Bearer nope")
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		f.handler.ServeHTTP(rec, browserRequest(http.MethodDelete, "/api/invites/inv-1", ""))
		if rec.Code != http.StatusNoContent || f.invites.revokedID != "inv-1" {
			t.Fatalf("expected revoke of inv-1, got %d %q", rec.Code, f.invites.revokedID)
		}
	})
}

func TestPathParamMissing(t *testing.T) {
	if _, ok := pathParam(httptest.NewRequest(http.MethodGet, "/", nil), "id"); ok {
		t.Fatalf("expected missing param")
	}
}
