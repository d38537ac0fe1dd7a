package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/clients"
	"github.com/example/movienight/internal/clients/overseerr"
	"github.com/example/movienight/internal/clients/plex"
	"github.com/example/movienight/internal/clients/tmdb"
	"github.com/example/movienight/internal/metrics"
	"github.com/example/movienight/internal/persistence"
)

// MovieCatalog supplies metadata for nominations submitted without it.
type MovieCatalog interface {
	PlexMovie(ctx context.Context, ratingKey string) (plex.Movie, error)
	TMDBMovie(ctx context.Context, id int) (tmdb.Movie, error)
	OverseerrMovie(ctx context.Context, tmdbID int) (overseerr.Movie, error)
}

// NominationService handles nominations, votes and blocks.
type NominationService struct {
	nominations persistence.NominationRepository
	scope       nightScope
	catalog     MovieCatalog
	watch       WatchHistory
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewNominationService wires dependencies for nomination operations.
func NewNominationService(groups persistence.GroupRepository, nights persistence.MovieNightRepository, nominations persistence.NominationRepository, catalog MovieCatalog, watch WatchHistory, loc *time.Location, idGenerator func() string, now func() time.Time) *NominationService {
	return NewNominationServiceWithLogger(groups, nights, nominations, catalog, watch, loc, idGenerator, now, nil)
}

// NewNominationServiceWithLogger wires dependencies with a specified logger.
func NewNominationServiceWithLogger(groups persistence.GroupRepository, nights persistence.MovieNightRepository, nominations persistence.NominationRepository, catalog MovieCatalog, watch WatchHistory, loc *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *NominationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &NominationService{
		nominations: nominations,
		scope:       nightScope{groups: groups, nights: nights, auth: authorizer{groups: groups}, cal: newCalendar(loc, now)},
		catalog:     catalog,
		watch:       watch,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *NominationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NominationService", operation, attrs...)
}

// NominationInput identifies a movie by exactly one of PlexRatingKey and
// TMDBID. Missing metadata is looked up.
type NominationInput struct {
	PlexRatingKey  string `json:"plexRatingKey" validate:"max=64"`
	TMDBID         int64  `json:"tmdbId" validate:"min=0"`
	Title          string `json:"title" validate:"max=300"`
	Year           int    `json:"year" validate:"min=0,max=3000"`
	PosterURL      string `json:"posterUrl" validate:"max=1000"`
	Overview       string `json:"overview" validate:"max=5000"`
	RuntimeMinutes int    `json:"runtimeMinutes" validate:"min=0,max=1000"`
}

// Nominate adds a movie to a night. Requires canNominate while voting is open.
func (s *NominationService) Nominate(ctx context.Context, principal Principal, nightID string, input NominationInput) (nomination Nomination, err error) {
	if s == nil {
		err = fmt.Errorf("NominationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Nominate", "principal_id", principal.UserID, "movie_night_id", nightID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to nominate", "")
			return
		}
		logger.With("nomination_id", nomination.ID, "title", nomination.Title).InfoContext(ctx, "movie nominated")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanNominate {
		err = ErrUnauthorized
		return
	}
	if err = s.scope.requireVoting(scoped.night); err != nil {
		return
	}

	input.PlexRatingKey = strings.TrimSpace(input.PlexRatingKey)
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateStruct(input)
	if (input.PlexRatingKey == "") == (input.TMDBID == 0) {
		vErr.add("plexRatingKey", "exactly one of plex rating key and tmdb id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	input = s.fillMetadata(ctx, input)
	if input.Title == "" {
		err = fieldError("title", "title is required")
		return
	}

	record := persistence.Nomination{
		ID:             s.idGenerator(),
		MovieNightID:   nightID,
		NominatedBy:    principal.UserID,
		PlexRatingKey:  ptr(input.PlexRatingKey),
		TMDBID:         ptr(input.TMDBID),
		Title:          input.Title,
		Year:           ptr(input.Year),
		PosterURL:      ptr(input.PosterURL),
		Overview:       ptr(input.Overview),
		RuntimeMinutes: ptr(input.RuntimeMinutes),
		CreatedAt:      s.now(),
	}
	if err = s.nominations.CreateNomination(ctx, record); err != nil {
		err = mapNominationRepoError(err)
		return
	}
	nomination = toNomination(record)
	return
}

// fillMetadata completes the input from Plex for library items and from TMDB,
// then Overseerr, for the rest. Lookup failures leave fields as submitted.
func (s *NominationService) fillMetadata(ctx context.Context, input NominationInput) NominationInput {
	if s.catalog == nil || (input.Title != "" && input.Year != 0 && input.PosterURL != "" && input.RuntimeMinutes != 0) {
		return input
	}

	if input.PlexRatingKey != "" {
		m, err := s.catalog.PlexMovie(ctx, input.PlexRatingKey)
		if err != nil {
			return input
		}
		input.Title = firstNonEmpty(input.Title, m.Title)
		input.Year = firstNonZero(input.Year, m.Year)
		input.PosterURL = firstNonEmpty(input.PosterURL, m.Thumb)
		input.Overview = firstNonEmpty(input.Overview, m.Summary)
		input.RuntimeMinutes = firstNonZero(input.RuntimeMinutes, m.RuntimeMinutes())
		return input
	}

	if m, err := s.catalog.TMDBMovie(ctx, int(input.TMDBID)); err == nil {
		input.Title = firstNonEmpty(input.Title, m.Title)
		input.Year = firstNonZero(input.Year, m.Year())
		input.PosterURL = firstNonEmpty(input.PosterURL, m.PosterURL())
		input.Overview = firstNonEmpty(input.Overview, m.Overview)
		input.RuntimeMinutes = firstNonZero(input.RuntimeMinutes, m.Runtime)
		return input
	}
	if m, err := s.catalog.OverseerrMovie(ctx, int(input.TMDBID)); err == nil {
		input.Title = firstNonEmpty(input.Title, m.Title)
		input.Year = firstNonZero(input.Year, clients.Year(m.ReleaseDate))
		input.PosterURL = firstNonEmpty(input.PosterURL, m.PosterURL())
		input.Overview = firstNonEmpty(input.Overview, m.Overview)
		input.RuntimeMinutes = firstNonZero(input.RuntimeMinutes, m.Runtime)
	}
	return input
}

// DeleteNomination removes a nomination. Only its nominator or an ADMIN may,
// and only before the night is decided.
func (s *NominationService) DeleteNomination(ctx context.Context, principal Principal, nominationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NominationService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteNomination", "principal_id", principal.UserID, "nomination_id", nominationID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete nomination", "")
			return
		}
		logger.InfoContext(ctx, "nomination deleted")
	}()

	nomination, scoped, err := s.load(ctx, principal, nominationID)
	if err != nil {
		return err
	}
	if nomination.NominatedBy != principal.UserID && !scoped.role.AtLeast(access.RoleAdmin) {
		return ErrUnauthorized
	}
	if scoped.night.Status != persistence.NightStatusVoting {
		return stateError(msgVotingClosed)
	}
	return mapNominationRepoError(s.nominations.DeleteNomination(ctx, nominationID))
}

// Vote adds one of the caller's votes to a nomination. The per-night cap and
// the block check run in the same transaction as the write.
func (s *NominationService) Vote(ctx context.Context, principal Principal, nominationID string) (result VoteResult, err error) {
	if s == nil {
		err = fmt.Errorf("NominationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Vote", "principal_id", principal.UserID, "nomination_id", nominationID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to vote", "")
			return
		}
		metrics.RecordVote("cast")
		logger.With("vote_count", result.VoteCount).DebugContext(ctx, "vote cast")
	}()

	nomination, scoped, err := s.loadForVoting(ctx, principal, nominationID)
	if err != nil {
		return
	}

	now := s.now()
	vote, err := s.nominations.IncrementVote(ctx, persistence.Vote{
		NominationID: nominationID,
		UserID:       principal.UserID,
		MovieNightID: nomination.MovieNightID,
		HasWatched:   s.hasWatched(ctx, principal, nomination),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, scoped.group.MaxVotesPerUser)
	if err != nil {
		err = mapNominationRepoError(err)
		return
	}
	result, err = s.voteResult(ctx, principal, scoped, nominationID, vote.VoteCount, vote.HasWatched)
	return
}

// Unvote takes back one of the caller's votes.
func (s *NominationService) Unvote(ctx context.Context, principal Principal, nominationID string) (result VoteResult, err error) {
	if s == nil {
		err = fmt.Errorf("NominationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Unvote", "principal_id", principal.UserID, "nomination_id", nominationID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to remove vote", "")
			return
		}
		metrics.RecordVote("retract")
		logger.With("vote_count", result.VoteCount).DebugContext(ctx, "vote removed")
	}()

	_, scoped, err := s.loadForVoting(ctx, principal, nominationID)
	if err != nil {
		return
	}

	remaining, err := s.nominations.DecrementVote(ctx, nominationID, principal.UserID, s.now())
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = stateError(msgNoVoteToRemove)
			return
		}
		err = mapNominationRepoError(err)
		return
	}
	result, err = s.voteResult(ctx, principal, scoped, nominationID, remaining, false)
	return
}

// Block vetoes a nomination the caller has already watched and clears every
// vote on it.
func (s *NominationService) Block(ctx context.Context, principal Principal, nominationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NominationService is nil")
	}

	logger := s.loggerWith(ctx, "Block", "principal_id", principal.UserID, "nomination_id", nominationID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to block nomination", "")
			return
		}
		metrics.RecordVote("block")
		logger.InfoContext(ctx, "nomination blocked")
	}()

	nomination, _, err := s.loadForVoting(ctx, principal, nominationID)
	if err != nil {
		return err
	}
	if !s.hasWatched(ctx, principal, nomination) {
		return stateError(msgMustHaveWatched)
	}
	return mapNominationRepoError(s.nominations.BlockNomination(ctx, persistence.NominationBlock{
		NominationID: nominationID,
		UserID:       principal.UserID,
		CreatedAt:    s.now(),
	}))
}

// Unblock lifts the caller's own block. Cleared votes are not restored.
func (s *NominationService) Unblock(ctx context.Context, principal Principal, nominationID string) (err error) {
	if s == nil {
		return fmt.Errorf("NominationService is nil")
	}

	logger := s.loggerWith(ctx, "Unblock", "principal_id", principal.UserID, "nomination_id", nominationID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to unblock nomination", "")
			return
		}
		metrics.RecordVote("unblock")
		logger.InfoContext(ctx, "nomination unblocked")
	}()

	_, scoped, err := s.load(ctx, principal, nominationID)
	if err != nil {
		return err
	}
	if !scoped.caps().CanVote {
		return ErrUnauthorized
	}
	return mapNominationRepoError(s.nominations.UnblockNomination(ctx, nominationID, principal.UserID))
}

func (s *NominationService) load(ctx context.Context, principal Principal, nominationID string) (persistence.Nomination, scopedNight, error) {
	nomination, err := s.nominations.GetNomination(ctx, nominationID)
	if err != nil {
		return persistence.Nomination{}, scopedNight{}, mapNominationRepoError(err)
	}
	scoped, err := s.scope.load(ctx, principal, nomination.MovieNightID)
	if err != nil {
		return persistence.Nomination{}, scopedNight{}, err
	}
	return nomination, scoped, nil
}

func (s *NominationService) loadForVoting(ctx context.Context, principal Principal, nominationID string) (persistence.Nomination, scopedNight, error) {
	nomination, scoped, err := s.load(ctx, principal, nominationID)
	if err != nil {
		return nomination, scoped, err
	}
	if !scoped.caps().CanVote {
		return nomination, scoped, ErrUnauthorized
	}
	if err := s.scope.requireVoting(scoped.night); err != nil {
		return nomination, scoped, err
	}
	return nomination, scoped, nil
}

// hasWatched consults watch history for library nominations only.
func (s *NominationService) hasWatched(ctx context.Context, principal Principal, nomination persistence.Nomination) bool {
	if s.watch == nil || nomination.PlexRatingKey == nil {
		return false
	}
	return s.watch.HasWatched(ctx, principal.PlexID, *nomination.PlexRatingKey)
}

func (s *NominationService) voteResult(ctx context.Context, principal Principal, scoped scopedNight, nominationID string, count int, watched bool) (VoteResult, error) {
	used, err := s.nominations.CountUserVotes(ctx, scoped.night.ID, principal.UserID)
	if err != nil {
		return VoteResult{}, err
	}
	result := VoteResult{
		NominationID: nominationID,
		VoteCount:    count,
		VotesUsed:    used,
		HasWatched:   watched,
	}
	if remaining := scoped.group.MaxVotesPerUser - used; remaining > 0 {
		result.VotesRemaining = remaining
	}
	return result, nil
}

func toNomination(n persistence.Nomination) Nomination {
	return Nomination{
		ID:             n.ID,
		MovieNightID:   n.MovieNightID,
		PlexRatingKey:  deref(n.PlexRatingKey),
		TMDBID:         deref(n.TMDBID),
		Title:          n.Title,
		Year:           deref(n.Year),
		PosterURL:      deref(n.PosterURL),
		Overview:       deref(n.Overview),
		RuntimeMinutes: deref(n.RuntimeMinutes),
		NominatedBy:    n.NominatedBy,
		CreatedAt:      n.CreatedAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func mapNominationRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return stateError(msgAlreadyNominated)
	case errors.Is(err, persistence.ErrLimitReached):
		return stateError(msgVotesUsed)
	case errors.Is(err, persistence.ErrBlocked):
		return stateError(msgNominationBlocked)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("nomination", "nomination fields are invalid")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}
