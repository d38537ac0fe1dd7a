package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/movienight/internal/application"
	"github.com/example/movienight/internal/breaker"
	"github.com/example/movienight/internal/imagecache"
)

type settingsService interface {
	GetSettings(ctx context.Context, principal application.Principal) ([]application.SettingValue, error)
	UpdateSettings(ctx context.Context, principal application.Principal, values map[string]string) ([]application.SettingValue, error)
}

type statusService interface {
	ListStatus(ctx context.Context, principal application.Principal) ([]application.ServiceStatus, error)
	Retry(ctx context.Context, principal application.Principal, service string) error
}

type imageService interface {
	Poster(ctx context.Context, principal application.Principal, src string) (imagecache.Image, error)
	ClearCache(ctx context.Context, principal application.Principal) (int, error)
}

// posterMaxAge is how long browsers may keep a proxied poster.
const posterMaxAge = 24 * 60 * 60

// AdminHandler serves operator settings, integration status and the
// poster proxy.
type AdminHandler struct {
	settings  settingsService
	status    statusService
	images    imageService
	responder responder
	logger    *slog.Logger
}

func NewAdminHandler(settings settingsService, status statusService, images imageService, logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{settings: settings, status: status, images: images, responder: newResponder(base), logger: base}
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.settings == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	values, err := h.settings.GetSettings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, settingsResponse{Settings: toSettingDTOs(values)})
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.settings == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	values, err := h.settings.UpdateSettings(r.Context(), principal, req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "AdminHandler", "UpdateSettings", "keys", len(req)).InfoContext(r.Context(), "settings updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, settingsResponse{Settings: toSettingDTOs(values)})
}

func (h *AdminHandler) ListStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.status == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	statuses, err := h.status.ListStatus(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]serviceStatusDTO, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, serviceStatusDTO{Service: s.Service, Status: s.Status})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statusResponse{Services: out})
}

// RetryService closes the breaker for {service} so the next call goes through.
func (h *AdminHandler) RetryService(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.status == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	service, ok := pathParam(r, "service")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.status.Retry(r.Context(), principal, service); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AdminHandler) Image(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.images == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	img, err := h.images.Poster(r.Context(), principal, r.URL.Query().Get("src"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(posterMaxAge))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		handlerLogger(r.Context(), h.logger, "AdminHandler", "Image").WarnContext(r.Context(), "failed to write image", "error", err)
	}
}

func (h *AdminHandler) ClearImages(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.images == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	removed, err := h.images.ClearCache(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, clearImagesResponse{Removed: removed})
}

type settingDTO struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	IsSet  bool   `json:"isSet"`
	Secret bool   `json:"secret"`
}

type settingsResponse struct {
	Settings []settingDTO `json:"settings"`
}

type serviceStatusDTO struct {
	Service string `json:"service"`
	breaker.Status
}

type statusResponse struct {
	Services []serviceStatusDTO `json:"services"`
}

type clearImagesResponse struct {
	Removed int `json:"removed"`
}

func toSettingDTOs(values []application.SettingValue) []settingDTO {
	out := make([]settingDTO, 0, len(values))
	for _, v := range values {
		out = append(out, settingDTO{Key: v.Key, Value: v.Value, IsSet: v.IsSet, Secret: v.Secret})
	}
	return out
}
