package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/application"
)

type authService interface {
	StartPlexLogin(ctx context.Context) (application.PlexPIN, error)
	CompletePlexLogin(ctx context.Context, pinID int) (application.LoginResult, error)
	LocalLogin(ctx context.Context, input application.LocalLoginInput) (application.LoginResult, error)
	RevokeSession(ctx context.Context, token string) error
	Me(ctx context.Context, principal application.Principal) (application.User, error)
}

type AuthHandler struct {
	service   authService
	cookies   cookieSettings
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, cookies: cookieSettings{secure: secureCookies}, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// StartPlexLogin creates a plex.tv PIN for the browser to approve.
func (h *AuthHandler) StartPlexLogin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	pin, err := h.service.StartPlexLogin(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, plexPINResponse{ID: pin.ID, Code: pin.Code, AuthURL: pin.AuthURL})
}

// PollPlexLogin checks a PIN and signs the user in once it is approved.
func (h *AuthHandler) PollPlexLogin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	pinID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || pinID <= 0 {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("invalid pin id"))
		return
	}

	result, err := h.service.CompletePlexLogin(r.Context(), pinID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if result.Pending {
		h.responder.writeJSON(r.Context(), w, http.StatusOK, loginResponse{Pending: true})
		return
	}

	h.log(r.Context(), "PollPlexLogin", "user_id", result.User.ID, "created", result.Created).InfoContext(r.Context(), "plex sign-in complete")
	h.writeLogin(r.Context(), w, result)
}

// LocalLogin signs in a local user with a password.
func (h *AuthHandler) LocalLogin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req localLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "LocalLogin", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	username := strings.TrimSpace(req.Username)
	result, err := h.service.LocalLogin(r.Context(), application.LocalLoginInput{Username: username, Password: req.Password})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "LocalLogin", "user_id", result.User.ID).InfoContext(r.Context(), "user authenticated")
	h.writeLogin(r.Context(), w, result)
}

func (h *AuthHandler) writeLogin(ctx context.Context, w http.ResponseWriter, result application.LoginResult) {
	h.cookies.setSession(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)
	user := toUserDTO(result.User)
	h.responder.writeJSON(ctx, w, http.StatusOK, loginResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		Created:   result.Created,
		User:      &user,
	})
}

// Logout revokes the caller's session. It succeeds even when the session is
// already gone so clients can always clear their state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if token := extractTokenFromRequest(r); token != "" {
		err := h.service.RevokeSession(r.Context(), token)
		if err != nil && !errors.Is(err, application.ErrInvalidCredentials) {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
	}

	h.cookies.clearSession(w)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Me returns the caller with their application-wide role and capabilities.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	user, err := h.service.Me(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	role, caps := application.AppCapabilities(principal)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, meResponse{
		User:          toUserDTO(user),
		Role:          role,
		Capabilities:  caps,
		IsLocalInvite: principal.IsLocalInvite,
		MovieNightID:  principal.MovieNightID,
	})
}

type localLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type plexPINResponse struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	AuthURL string `json:"authUrl"`
}

type loginResponse struct {
	Pending   bool     `json:"pending,omitempty"`
	Token     string   `json:"token,omitempty"`
	ExpiresAt string   `json:"expiresAt,omitempty"`
	Created   bool     `json:"created,omitempty"`
	User      *userDTO `json:"user,omitempty"`
}

type meResponse struct {
	User          userDTO             `json:"user"`
	Role          access.Role         `json:"role"`
	Capabilities  access.Capabilities `json:"capabilities"`
	IsLocalInvite bool                `json:"isLocalInvite"`
	MovieNightID  string              `json:"movieNightId,omitempty"`
}
