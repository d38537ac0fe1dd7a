package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/application"
)

type movieNightService interface {
	ListMovieNights(ctx context.Context, principal application.Principal, groupID string, includePast bool) ([]application.MovieNight, error)
	CreateMovieNight(ctx context.Context, principal application.Principal, groupID string, input application.MovieNightInput) (application.MovieNight, error)
	GetMovieNight(ctx context.Context, principal application.Principal, nightID string) (application.MovieNightDetail, error)
	SetHost(ctx context.Context, principal application.Principal, nightID, hostID string) (application.MovieNight, error)
	CancelMovieNight(ctx context.Context, principal application.Principal, nightID string, input application.CancelInput) (application.MovieNight, error)
	SetAttendance(ctx context.Context, principal application.Principal, nightID, status string) error
	Decide(ctx context.Context, principal application.Principal, nightID, nominationID string) (application.MovieNightDetail, error)
	UndoDecision(ctx context.Context, principal application.Principal, nightID string) (application.MovieNightDetail, error)
}

type MovieNightHandler struct {
	service   movieNightService
	responder responder
	logger    *slog.Logger
}

func NewMovieNightHandler(service movieNightService, logger *slog.Logger) *MovieNightHandler {
	base := defaultLogger(logger)
	return &MovieNightHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MovieNightHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MovieNightHandler", operation, attrs...)
}

// List returns a group's nights. Past nights are included with ?includePast=true.
func (h *MovieNightHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	includePast, _ := strconv.ParseBool(r.URL.Query().Get("includePast"))

	principal, _ := PrincipalFromContext(r.Context())
	nights, err := h.service.ListMovieNights(r.Context(), principal, groupID, includePast)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]movieNightDTO, 0, len(nights))
	for _, n := range nights {
		out = append(out, toMovieNightDTO(n))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMovieNightsResponse{MovieNights: out})
}

func (h *MovieNightHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req movieNightRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	night, err := h.service.CreateMovieNight(r.Context(), principal, groupID, application.MovieNightInput{
		Date:   req.Date,
		Time:   req.Time,
		HostID: req.HostID,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "movie_night_id", night.ID).InfoContext(r.Context(), "movie night created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, movieNightResponse{MovieNight: toMovieNightDTO(night)})
}

func (h *MovieNightHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	detail, err := h.service.GetMovieNight(r.Context(), principal, nightID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMovieNightDetailDTO(detail))
}

func (h *MovieNightHandler) SetHost(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req hostRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	night, err := h.service.SetHost(r.Context(), principal, nightID, req.HostID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, movieNightResponse{MovieNight: toMovieNightDTO(night)})
}

func (h *MovieNightHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	night, err := h.service.CancelMovieNight(r.Context(), principal, nightID, application.CancelInput{
		Cancelled: req.Cancelled,
		Reason:    req.Reason,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, movieNightResponse{MovieNight: toMovieNightDTO(night)})
}

func (h *MovieNightHandler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.SetAttendance(r.Context(), principal, nightID, req.Status); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Decide picks the winner. Without a nominationId the votes decide.
func (h *MovieNightHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	detail, err := h.service.Decide(r.Context(), principal, nightID, req.NominationID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Decide", "movie_night_id", nightID, "winner_id", detail.WinningNominationID, "explicit", req.NominationID != "").
		InfoContext(r.Context(), "winner decided")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMovieNightDetailDTO(detail))
}

func (h *MovieNightHandler) UndoDecision(w http.ResponseWriter, r *http.Request) {
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
	detail, err := h.service.UndoDecision(r.Context(), principal, nightID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMovieNightDetailDTO(detail))
}

type movieNightRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	HostID string `json:"hostId"`
}

type hostRequest struct {
	HostID string `json:"hostId"`
}

type cancelRequest struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason"`
}

type attendanceRequest struct {
	Status string `json:"status"`
}

type decideRequest struct {
	NominationID string `json:"nominationId"`
}

type movieNightResponse struct {
	MovieNight movieNightDTO `json:"movieNight"`
}

type listMovieNightsResponse struct {
	MovieNights []movieNightDTO `json:"movieNights"`
}

type movieNightDTO struct {
	ID                  string `json:"id"`
	GroupID             string `json:"groupId"`
	ScheduleID          string `json:"scheduleId,omitempty"`
	Date                string `json:"date"`
	Time                string `json:"time"`
	Status              string `json:"status"`
	IsCancelled         bool   `json:"isCancelled"`
	CancelReason        string `json:"cancelReason,omitempty"`
	WinningNominationID string `json:"winningNominationId,omitempty"`
	HostID              string `json:"hostId,omitempty"`
	IsArchived          bool   `json:"isArchived"`
	IsLocked            bool   `json:"isLocked"`
}

type movieNightDetailDTO struct {
	movieNightDTO
	GroupName      string              `json:"groupName"`
	HostName       string              `json:"hostName,omitempty"`
	Nominations    []nominationDTO     `json:"nominations"`
	Attendance     []attendanceDTO     `json:"attendance"`
	Role           access.Role         `json:"role"`
	Capabilities   access.Capabilities `json:"capabilities"`
	MaxVotes       int                 `json:"maxVotes"`
	VotesUsed      int                 `json:"votesUsed"`
	VotesRemaining int                 `json:"votesRemaining"`
	MyAttendance   string              `json:"myAttendance,omitempty"`
}

type attendanceDTO struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

func toMovieNightDTO(n application.MovieNight) movieNightDTO {
	return movieNightDTO{
		ID:                  n.ID,
		GroupID:             n.GroupID,
		ScheduleID:          n.ScheduleID,
		Date:                n.Date,
		Time:                n.Time,
		Status:              n.Status,
		IsCancelled:         n.IsCancelled,
		CancelReason:        n.CancelReason,
		WinningNominationID: n.WinningNominationID,
		HostID:              n.HostID,
		IsArchived:          n.IsArchived,
		IsLocked:            n.IsLocked,
	}
}

func toMovieNightDetailDTO(d application.MovieNightDetail) movieNightDetailDTO {
	dto := movieNightDetailDTO{
		movieNightDTO:  toMovieNightDTO(d.MovieNight),
		GroupName:      d.GroupName,
		HostName:       d.HostName,
		Nominations:    make([]nominationDTO, 0, len(d.Nominations)),
		Attendance:     make([]attendanceDTO, 0, len(d.Attendance)),
		Role:           d.Role,
		Capabilities:   d.Capabilities,
		MaxVotes:       d.MaxVotes,
		VotesUsed:      d.VotesUsed,
		VotesRemaining: d.VotesRemaining,
		MyAttendance:   d.MyAttendance,
	}
	for _, n := range d.Nominations {
		dto.Nominations = append(dto.Nominations, toNominationDTO(n))
	}
	for _, a := range d.Attendance {
		dto.Attendance = append(dto.Attendance, attendanceDTO{UserID: a.UserID, DisplayName: a.DisplayName, Status: a.Status})
	}
	return dto
}
