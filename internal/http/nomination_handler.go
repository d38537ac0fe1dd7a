package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/movienight/internal/application"
)

type nominationService interface {
	Nominate(ctx context.Context, principal application.Principal, nightID string, input application.NominationInput) (application.Nomination, error)
	DeleteNomination(ctx context.Context, principal application.Principal, nominationID string) error
	Vote(ctx context.Context, principal application.Principal, nominationID string) (application.VoteResult, error)
	Unvote(ctx context.Context, principal application.Principal, nominationID string) (application.VoteResult, error)
	Block(ctx context.Context, principal application.Principal, nominationID string) error
	Unblock(ctx context.Context, principal application.Principal, nominationID string) error
}

type movieSearchService interface {
	SearchMovies(ctx context.Context, principal application.Principal, query string) ([]application.SearchResult, error)
}

type NominationHandler struct {
	service   nominationService
	search    movieSearchService
	responder responder
	logger    *slog.Logger
}

func NewNominationHandler(service nominationService, search movieSearchService, logger *slog.Logger) *NominationHandler {
	base := defaultLogger(logger)
	return &NominationHandler{service: service, search: search, responder: newResponder(base), logger: base}
}

func (h *NominationHandler) Nominate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	nightID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req nominationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	nomination, err := h.service.Nominate(r.Context(), principal, nightID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, nominationResponse{Nomination: toNominationDTO(nomination)})
}

func (h *NominationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.mutate(w, r, h.service.DeleteNomination)
}

func (h *NominationHandler) Block(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.mutate(w, r, h.service.Block)
}

func (h *NominationHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.mutate(w, r, h.service.Unblock)
}

func (h *NominationHandler) Vote(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.vote(w, r, h.service.Vote)
}

func (h *NominationHandler) Unvote(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.vote(w, r, h.service.Unvote)
}

func (h *NominationHandler) unavailable(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return true
	}
	return false
}

func (h *NominationHandler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, application.Principal, string) error) {
	nominationID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := op(r.Context(), principal, nominationID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *NominationHandler) vote(w http.ResponseWriter, r *http.Request, op func(context.Context, application.Principal, string) (application.VoteResult, error)) {
	nominationID, ok := pathParam(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := op(r.Context(), principal, nominationID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, voteResponse{
		NominationID:   result.NominationID,
		VoteCount:      result.VoteCount,
		VotesUsed:      result.VotesUsed,
		VotesRemaining: result.VotesRemaining,
		HasWatched:     result.HasWatched,
	})
}

// Search lists nomination candidates for ?q=.
func (h *NominationHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.search == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	results, err := h.search.SearchMovies(r.Context(), principal, r.URL.Query().Get("q"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]searchResultDTO, 0, len(results))
	for _, m := range results {
		out = append(out, searchResultDTO{
			Source:        m.Source,
			PlexRatingKey: m.PlexRatingKey,
			TMDBID:        m.TMDBID,
			Title:         m.Title,
			Year:          m.Year,
			PosterURL:     m.PosterURL,
			Overview:      m.Overview,
			InLibrary:     m.InLibrary,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, searchResponse{Results: out})
}

type nominationRequest struct {
	PlexRatingKey  string `json:"plexRatingKey"`
	TMDBID         int64  `json:"tmdbId"`
	Title          string `json:"title"`
	Year           int    `json:"year"`
	PosterURL      string `json:"posterUrl"`
	Overview       string `json:"overview"`
	RuntimeMinutes int    `json:"runtimeMinutes"`
}

func (r nominationRequest) toInput() application.NominationInput {
	return application.NominationInput{
		PlexRatingKey:  r.PlexRatingKey,
		TMDBID:         r.TMDBID,
		Title:          r.Title,
		Year:           r.Year,
		PosterURL:      r.PosterURL,
		Overview:       r.Overview,
		RuntimeMinutes: r.RuntimeMinutes,
	}
}

type nominationResponse struct {
	Nomination nominationDTO `json:"nomination"`
}

type nominationDTO struct {
	ID             string     `json:"id"`
	MovieNightID   string     `json:"movieNightId"`
	PlexRatingKey  string     `json:"plexRatingKey,omitempty"`
	TMDBID         int64      `json:"tmdbId,omitempty"`
	Title          string     `json:"title"`
	Year           int        `json:"year,omitempty"`
	PosterURL      string     `json:"posterUrl,omitempty"`
	Overview       string     `json:"overview,omitempty"`
	RuntimeMinutes int        `json:"runtimeMinutes,omitempty"`
	NominatedBy    string     `json:"nominatedBy"`
	NominatorName  string     `json:"nominatorName,omitempty"`
	CreatedAt      string     `json:"createdAt"`
	Votes          int        `json:"votes"`
	MyVotes        int        `json:"myVotes"`
	Voters         []voterDTO `json:"voters"`
	IsBlocked      bool       `json:"isBlocked"`
	BlockedByMe    bool       `json:"blockedByMe"`
	IsWinner       bool       `json:"isWinner"`
	IsLeading      bool       `json:"isLeading"`
}

type voterDTO struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
	HasWatched  bool   `json:"hasWatched"`
}

type voteResponse struct {
	NominationID   string `json:"nominationId"`
	VoteCount      int    `json:"voteCount"`
	VotesUsed      int    `json:"votesUsed"`
	VotesRemaining int    `json:"votesRemaining"`
	HasWatched     bool   `json:"hasWatched"`
}

type searchResponse struct {
	Results []searchResultDTO `json:"results"`
}

type searchResultDTO struct {
	Source        string `json:"source"`
	PlexRatingKey string `json:"plexRatingKey,omitempty"`
	TMDBID        int64  `json:"tmdbId,omitempty"`
	Title         string `json:"title"`
	Year          int    `json:"year,omitempty"`
	PosterURL     string `json:"posterUrl,omitempty"`
	Overview      string `json:"overview,omitempty"`
	InLibrary     bool   `json:"inLibrary"`
}

func toNominationDTO(n application.Nomination) nominationDTO {
	dto := nominationDTO{
		ID:             n.ID,
		MovieNightID:   n.MovieNightID,
		PlexRatingKey:  n.PlexRatingKey,
		TMDBID:         n.TMDBID,
		Title:          n.Title,
		Year:           n.Year,
		PosterURL:      n.PosterURL,
		Overview:       n.Overview,
		RuntimeMinutes: n.RuntimeMinutes,
		NominatedBy:    n.NominatedBy,
		NominatorName:  n.NominatorName,
		CreatedAt:      formatTime(n.CreatedAt),
		Votes:          n.Votes,
		MyVotes:        n.MyVotes,
		Voters:         make([]voterDTO, 0, len(n.Voters)),
		IsBlocked:      n.IsBlocked,
		BlockedByMe:    n.BlockedByMe,
		IsWinner:       n.IsWinner,
		IsLeading:      n.IsLeading,
	}
	for _, v := range n.Voters {
		dto.Voters = append(dto.Voters, voterDTO{UserID: v.UserID, DisplayName: v.DisplayName, Count: v.Count, HasWatched: v.HasWatched})
	}
	return dto
}
