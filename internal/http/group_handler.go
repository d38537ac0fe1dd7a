package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/application"
)

type groupService interface {
	ListGroups(ctx context.Context, principal application.Principal) ([]application.Group, error)
	CreateGroup(ctx context.Context, principal application.Principal, input application.GroupInput) (application.Group, error)
	GetGroup(ctx context.Context, principal application.Principal, groupID string) (application.Group, error)
	UpdateGroup(ctx context.Context, principal application.Principal, groupID string, input application.GroupInput) (application.Group, error)
	DeleteGroup(ctx context.Context, principal application.Principal, groupID string) error
	AddMember(ctx context.Context, principal application.Principal, groupID string, input application.MemberInput) (application.GroupMember, error)
	UpdateMemberRole(ctx context.Context, principal application.Principal, groupID, userID, role string) error
	RemoveMember(ctx context.Context, principal application.Principal, groupID, userID string) error
}

type GroupHandler struct {
	service   groupService
	responder responder
	logger    *slog.Logger
}

func NewGroupHandler(service groupService, logger *slog.Logger) *GroupHandler {
	base := defaultLogger(logger)
	return &GroupHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	groups, err := h.service.ListGroups(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupDTO(g))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listGroupsResponse{Groups: out})
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	group, err := h.service.CreateGroup(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "GroupHandler", "Create", "group_id", group.ID).InfoContext(r.Context(), "group created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	group, err := h.service.GetGroup(r.Context(), principal, groupID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	group, err := h.service.UpdateGroup(r.Context(), principal, groupID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteGroup(r.Context(), principal, groupID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	member, err := h.service.AddMember(r.Context(), principal, groupID, application.MemberInput{UserID: req.UserID, Role: req.Role})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, memberResponse{Member: toMemberDTO(member)})
}

func (h *GroupHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, okGroup := pathParam(r, "id")
	userID, okUser := pathParam(r, "userId")
	if !okGroup || !okUser {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.UpdateMemberRole(r.Context(), principal, groupID, userID, req.Role); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, okGroup := pathParam(r, "id")
	userID, okUser := pathParam(r, "userId")
	if !okGroup || !okUser {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.RemoveMember(r.Context(), principal, groupID, userID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type groupRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	MaxVotesPerUser int     `json:"maxVotesPerUser"`
	SharingEnabled  bool    `json:"sharingEnabled"`
	InvitePIN       *string `json:"invitePin"`
}

func (r groupRequest) toInput() application.GroupInput {
	return application.GroupInput{
		Name:            r.Name,
		Description:     r.Description,
		MaxVotesPerUser: r.MaxVotesPerUser,
		SharingEnabled:  r.SharingEnabled,
		InvitePIN:       r.InvitePIN,
	}
}

type memberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type groupResponse struct {
	Group groupDTO `json:"group"`
}

type listGroupsResponse struct {
	Groups []groupDTO `json:"groups"`
}

type memberResponse struct {
	Member memberDTO `json:"member"`
}

type groupDTO struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	MaxVotesPerUser int                 `json:"maxVotesPerUser"`
	SharingEnabled  bool                `json:"sharingEnabled"`
	HasInvitePIN    bool                `json:"hasInvitePin"`
	InvitePIN       string              `json:"invitePin,omitempty"`
	CreatedBy       string              `json:"createdBy"`
	CreatedAt       string              `json:"createdAt"`
	Role            access.Role         `json:"role"`
	Capabilities    access.Capabilities `json:"capabilities"`
	Members         []memberDTO         `json:"members,omitempty"`
}

type memberDTO struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joinedAt"`
}

func toGroupDTO(g application.Group) groupDTO {
	dto := groupDTO{
		ID:              g.ID,
		Name:            g.Name,
		Description:     g.Description,
		MaxVotesPerUser: g.MaxVotesPerUser,
		SharingEnabled:  g.SharingEnabled,
		HasInvitePIN:    g.HasInvitePIN,
		InvitePIN:       g.InvitePIN,
		CreatedBy:       g.CreatedBy,
		CreatedAt:       formatTime(g.CreatedAt),
		Role:            g.Role,
		Capabilities:    g.Capabilities,
	}
	for _, m := range g.Members {
		dto.Members = append(dto.Members, toMemberDTO(m))
	}
	return dto
}

func toMemberDTO(m application.GroupMember) memberDTO {
	return memberDTO{
		UserID:      m.UserID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		Role:        m.Role,
		JoinedAt:    formatTime(m.JoinedAt),
	}
}
