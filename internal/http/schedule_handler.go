package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/movienight/internal/application"
)

type scheduleService interface {
	ListSchedules(ctx context.Context, principal application.Principal, groupID string) ([]application.Schedule, error)
	CreateSchedule(ctx context.Context, principal application.Principal, groupID string, input application.ScheduleInput) (application.Schedule, int, error)
	UpdateSchedule(ctx context.Context, principal application.Principal, scheduleID string, input application.ScheduleInput) (application.Schedule, error)
	DeleteSchedule(ctx context.Context, principal application.Principal, scheduleID string) error
}

type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	base := defaultLogger(logger)
	return &ScheduleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
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
	schedules, err := h.service.ListSchedules(r.Context(), principal, groupID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]scheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, toScheduleDTO(s))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: out})
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	schedule, generated, err := h.service.CreateSchedule(r.Context(), principal, groupID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Create", "schedule_id", schedule.ID, "generated", generated).
		InfoContext(r.Context(), "schedule created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, scheduleResponse{Schedule: toScheduleDTO(schedule), Generated: generated})
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	schedule, err := h.service.UpdateSchedule(r.Context(), principal, scheduleID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{Schedule: toScheduleDTO(schedule)})
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteSchedule(r.Context(), principal, scheduleID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type scheduleRequest struct {
	Name          string `json:"name"`
	DayOfWeek     int    `json:"dayOfWeek"`
	Time          string `json:"time"`
	Recurrence    string `json:"recurrence"`
	GenerateCount int    `json:"generateCount"`
	HostID        string `json:"hostId"`
}

func (r scheduleRequest) toInput() application.ScheduleInput {
	return application.ScheduleInput{
		Name:          r.Name,
		DayOfWeek:     r.DayOfWeek,
		Time:          r.Time,
		Recurrence:    r.Recurrence,
		GenerateCount: r.GenerateCount,
		HostID:        r.HostID,
	}
}

type scheduleResponse struct {
	Schedule  scheduleDTO `json:"schedule"`
	Generated int         `json:"generated,omitempty"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type scheduleDTO struct {
	ID            string `json:"id"`
	GroupID       string `json:"groupId"`
	Name          string `json:"name"`
	DayOfWeek     int    `json:"dayOfWeek"`
	Time          string `json:"time"`
	Recurrence    string `json:"recurrence"`
	GenerateCount int    `json:"generateCount"`
	HostID        string `json:"hostId,omitempty"`
	StartsOn      string `json:"startsOn"`
	CreatedBy     string `json:"createdBy"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func toScheduleDTO(s application.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:            s.ID,
		GroupID:       s.GroupID,
		Name:          s.Name,
		DayOfWeek:     s.DayOfWeek,
		Time:          s.Time,
		Recurrence:    s.Recurrence,
		GenerateCount: s.GenerateCount,
		HostID:        s.HostID,
		StartsOn:      s.StartsOn,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}
