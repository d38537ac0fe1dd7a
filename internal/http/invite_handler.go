package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/movienight/internal/application"
)

type inviteService interface {
	CreateInvite(ctx context.Context, principal application.Principal, nightID string, input application.CreateInviteInput) (application.Invite, error)
	ListInvites(ctx context.Context, principal application.Principal, nightID string) ([]application.Invite, error)
	RevokeInvite(ctx context.Context, principal application.Principal, inviteID string) error
	ValidateInvite(ctx context.Context, token, pin, clientIP string) (application.InviteSummary, error)
	JoinInvite(ctx context.Context, token string, input application.JoinInput, clientIP string) (application.JoinResult, error)
}

// InviteHandler serves both the member side of invites and the public
// token endpoints guests use.
type InviteHandler struct {
	service   inviteService
	cookies   cookieSettings
	responder responder
	logger    *slog.Logger
}

func NewInviteHandler(service inviteService, secureCookies bool, logger *slog.Logger) *InviteHandler {
	base := defaultLogger(logger)
	return &InviteHandler{service: service, cookies: cookieSettings{secure: secureCookies}, responder: newResponder(base), logger: base}
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req createInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	invite, err := h.service.CreateInvite(r.Context(), principal, nightID, application.CreateInviteInput{ExpiresInHours: req.ExpiresInHours})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, inviteResponse{Invite: toInviteDTO(invite)})
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	invites, err := h.service.ListInvites(r.Context(), principal, nightID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]inviteDTO, 0, len(invites))
	for _, inv := range invites {
		out = append(out, toInviteDTO(inv))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listInvitesResponse{Invites: out})
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	inviteID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.RevokeInvite(r.Context(), principal, inviteID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Validate checks an invite token and, when the group sets one, its ?pin=.
func (h *InviteHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	summary, err := h.service.ValidateInvite(r.Context(), token, r.URL.Query().Get("pin"), clientIP(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toInviteSummaryDTO(summary))
}

// Join redeems an invite and signs the guest in.
func (h *InviteHandler) Join(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.JoinInvite(r.Context(), token, application.JoinInput{DisplayName: req.DisplayName, PIN: req.PIN}, clientIP(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.setSession(w, result.Cookie, result.Session.ExpiresAt)
	handlerLogger(r.Context(), h.logger, "InviteHandler", "Join", "user_id", result.User.ID, "movie_night_id", result.Session.MovieNightID).
		InfoContext(r.Context(), "guest joined")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, joinResponse{
		User:       toUserDTO(result.User),
		ExpiresAt:  formatTime(result.Session.ExpiresAt),
		MovieNight: toInviteSummaryDTO(result.Summary),
	})
}

type createInviteRequest struct {
	ExpiresInHours int `json:"expiresInHours"`
}

type joinRequest struct {
	DisplayName string `json:"displayName"`
	PIN         string `json:"pin"`
}

type inviteResponse struct {
	Invite inviteDTO `json:"invite"`
}

type listInvitesResponse struct {
	Invites []inviteDTO `json:"invites"`
}

type inviteDTO struct {
	ID           string `json:"id"`
	Token        string `json:"token"`
	MovieNightID string `json:"movieNightId"`
	CreatedBy    string `json:"createdBy"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	CreatedAt    string `json:"createdAt"`
	Expired      bool   `json:"expired"`
}

type inviteSummaryDTO struct {
	RequiresPIN     bool   `json:"requiresPin"`
	MovieNightID    string `json:"movieNightId,omitempty"`
	GroupName       string `json:"groupName,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	Status          string `json:"status,omitempty"`
	NominationCount int    `json:"nominationCount"`
}

type joinResponse struct {
	User       userDTO          `json:"user"`
	ExpiresAt  string           `json:"expiresAt"`
	MovieNight inviteSummaryDTO `json:"movieNight"`
}

func toInviteDTO(inv application.Invite) inviteDTO {
	dto := inviteDTO{
		ID:           inv.ID,
		Token:        inv.Token,
		MovieNightID: inv.MovieNightID,
		CreatedBy:    inv.CreatedBy,
		CreatedAt:    formatTime(inv.CreatedAt),
		Expired:      inv.Expired,
	}
	if inv.ExpiresAt != nil {
		dto.ExpiresAt = formatTime(*inv.ExpiresAt)
	}
	return dto
}

func toInviteSummaryDTO(s application.InviteSummary) inviteSummaryDTO {
	return inviteSummaryDTO{
		RequiresPIN:     s.RequiresPIN,
		MovieNightID:    s.MovieNightID,
		GroupName:       s.GroupName,
		Date:            s.Date,
		Time:            s.Time,
		Status:          s.Status,
		NominationCount: s.NominationCount,
	}
}
