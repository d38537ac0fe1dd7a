package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/metrics"
	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/tally"
)

// WatchHistory answers whether a Plex user has watched a library item.
// Lookup failures report false.
type WatchHistory interface {
	HasWatched(ctx context.Context, plexUserID, ratingKey string) bool
}

// nightScope loads a movie night together with its group and the caller's role.
type nightScope struct {
	groups persistence.GroupRepository
	nights persistence.MovieNightRepository
	auth   authorizer
	cal    calendar
}

type scopedNight struct {
	night persistence.MovieNight
	group persistence.Group
	role  access.Role
}

func (n scopedNight) caps() access.Capabilities {
	return access.CapabilitiesFor(n.role)
}

func (ns nightScope) load(ctx context.Context, p Principal, nightID string) (scopedNight, error) {
	night, err := ns.nights.GetMovieNight(ctx, nightID)
	if err != nil {
		return scopedNight{}, mapNightRepoError(err)
	}
	group, err := ns.groups.GetGroup(ctx, night.GroupID)
	if err != nil {
		return scopedNight{}, mapNightRepoError(err)
	}
	role, err := ns.auth.nightRole(ctx, p, night)
	if err != nil {
		return scopedNight{}, err
	}
	return scopedNight{night: night, group: group, role: role}, nil
}

// requireVoting refuses changes to nights that are decided, cancelled or past.
func (ns nightScope) requireVoting(night persistence.MovieNight) error {
	if night.Status != persistence.NightStatusVoting {
		return stateError(msgVotingClosed)
	}
	if ns.cal.isLocked(night) {
		return stateError(msgNightLocked)
	}
	return nil
}

// MovieNightService manages movie nights, attendance and winner decisions.
type MovieNightService struct {
	groups      persistence.GroupRepository
	nights      persistence.MovieNightRepository
	nominations persistence.NominationRepository
	users       persistence.UserRepository
	scope       nightScope
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMovieNightService wires dependencies for movie night operations.
func NewMovieNightService(groups persistence.GroupRepository, nights persistence.MovieNightRepository, nominations persistence.NominationRepository, users persistence.UserRepository, loc *time.Location, idGenerator func() string, now func() time.Time) *MovieNightService {
	return NewMovieNightServiceWithLogger(groups, nights, nominations, users, loc, idGenerator, now, nil)
}

// NewMovieNightServiceWithLogger wires dependencies with a specified logger.
func NewMovieNightServiceWithLogger(groups persistence.GroupRepository, nights persistence.MovieNightRepository, nominations persistence.NominationRepository, users persistence.UserRepository, loc *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MovieNightService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	auth := authorizer{groups: groups}
	return &MovieNightService{
		groups:      groups,
		nights:      nights,
		nominations: nominations,
		users:       users,
		scope:       nightScope{groups: groups, nights: nights, auth: auth, cal: newCalendar(loc, now)},
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *MovieNightService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MovieNightService", operation, attrs...)
}

// ListMovieNights lists a group's nights. Past nights are left out unless
// includePast is set.
func (s *MovieNightService) ListMovieNights(ctx context.Context, principal Principal, groupID string, includePast bool) ([]MovieNight, error) {
	if s == nil {
		return nil, fmt.Errorf("MovieNightService is nil")
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, mapNightRepoError(err)
	}
	if _, err := s.scope.auth.groupRole(ctx, principal, groupID, ""); err != nil {
		return nil, err
	}

	var filter persistence.MovieNightFilter
	if !includePast {
		filter.FromDate = s.scope.cal.today()
	}
	records, err := s.nights.ListMovieNights(ctx, groupID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]MovieNight, 0, len(records))
	for _, record := range records {
		out = append(out, s.scope.cal.toMovieNight(record))
	}
	return out, nil
}

// MovieNightInput describes an ad-hoc movie night.
type MovieNightInput struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,hhmm"`
	HostID string `json:"hostId"`
}

// CreateMovieNight adds a night outside any schedule.
func (s *MovieNightService) CreateMovieNight(ctx context.Context, principal Principal, groupID string, input MovieNightInput) (night MovieNight, err error) {
	if s == nil {
		err = fmt.Errorf("MovieNightService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateMovieNight", "principal_id", principal.UserID, "group_id", groupID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create movie night", "")
			return
		}
		logger.With("movie_night_id", night.ID, "date", night.Date).InfoContext(ctx, "movie night created")
	}()

	if _, err = s.groups.GetGroup(ctx, groupID); err != nil {
		err = mapNightRepoError(err)
		return
	}
	if _, err = s.scope.auth.groupRole(ctx, principal, groupID, ""); err != nil {
		return
	}

	input.Date = strings.TrimSpace(input.Date)
	input.Time = strings.TrimSpace(input.Time)
	input.HostID = strings.TrimSpace(input.HostID)
	vErr := validateStruct(input)
	if !vErr.HasErrors() && s.scope.cal.isArchived(input.Date) {
		vErr.add("date", "date must not be in the past")
	}
	if input.HostID != "" {
		if hErr := s.ensureMember(ctx, groupID, input.HostID); hErr != nil {
			var inner *ValidationError
			if !errors.As(hErr, &inner) {
				err = hErr
				return
			}
			vErr.merge(inner)
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	record := persistence.MovieNight{
		ID:        s.idGenerator(),
		GroupID:   groupID,
		Date:      input.Date,
		Time:      input.Time,
		Status:    persistence.NightStatusVoting,
		HostID:    ptr(input.HostID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.nights.CreateMovieNight(ctx, record); err != nil {
		err = mapNightRepoError(err)
		return
	}
	night = s.scope.cal.toMovieNight(record)
	return
}

// GetMovieNight returns the detail view of a night: nominations with their
// displayed tally, attendance and the caller's capabilities and votes.
func (s *MovieNightService) GetMovieNight(ctx context.Context, principal Principal, nightID string) (MovieNightDetail, error) {
	if s == nil {
		return MovieNightDetail{}, fmt.Errorf("MovieNightService is nil")
	}
	scoped, err := s.scope.load(ctx, principal, nightID)
	if err != nil {
		return MovieNightDetail{}, err
	}
	return s.detail(ctx, principal, scoped)
}

func (s *MovieNightService) detail(ctx context.Context, principal Principal, scoped scopedNight) (MovieNightDetail, error) {
	night := scoped.night
	nominations, err := s.nominations.ListNominations(ctx, night.ID)
	if err != nil {
		return MovieNightDetail{}, err
	}
	votes, err := s.nominations.ListVotes(ctx, night.ID)
	if err != nil {
		return MovieNightDetail{}, err
	}
	blocks, err := s.nominations.ListBlocks(ctx, night.ID)
	if err != nil {
		return MovieNightDetail{}, err
	}
	attendance, err := s.nights.ListAttendance(ctx, night.ID)
	if err != nil {
		return MovieNightDetail{}, err
	}
	members, err := s.groups.ListMembers(ctx, night.GroupID)
	if err != nil {
		return MovieNightDetail{}, err
	}

	names := newNameBook(s.users, members)
	filter := tally.NewFilter(toTallyAttendance(attendance))

	blocked := make(map[string]bool)
	blockedByMe := make(map[string]bool)
	for _, b := range blocks {
		blocked[b.NominationID] = true
		if b.UserID == principal.UserID {
			blockedByMe[b.NominationID] = true
		}
	}

	displayed := tally.Totals(toTallyVotes(votes), filter.CountsForDisplay)
	entries := make([]tally.Entry, 0, len(nominations))
	byID := make(map[string]persistence.Nomination, len(nominations))
	for _, n := range nominations {
		byID[n.ID] = n
		entries = append(entries, tally.Entry{
			Candidate: tally.Candidate{ID: n.ID, CreatedAt: n.CreatedAt, Blocked: blocked[n.ID]},
			Votes:     displayed[n.ID],
		})
	}
	entries = tally.MarkLeaders(entries, deref(night.WinningNominationID))

	votersByNomination := make(map[string][]Voter)
	myVotes := make(map[string]int)
	used := 0
	for _, v := range votes {
		if v.UserID == principal.UserID {
			myVotes[v.NominationID] += v.VoteCount
			used += v.VoteCount
		}
		if !filter.CountsForDisplay(v.UserID) {
			continue
		}
		votersByNomination[v.NominationID] = append(votersByNomination[v.NominationID], Voter{
			UserID:      v.UserID,
			DisplayName: names.lookup(ctx, v.UserID),
			Count:       v.VoteCount,
			HasWatched:  v.HasWatched,
		})
	}

	detail := MovieNightDetail{
		MovieNight:   s.scope.cal.toMovieNight(night),
		GroupName:    scoped.group.Name,
		Role:         scoped.role,
		Capabilities: scoped.caps(),
		MaxVotes:     scoped.group.MaxVotesPerUser,
		VotesUsed:    used,
		MyAttendance: persistence.AttendancePending,
	}
	if remaining := scoped.group.MaxVotesPerUser - used; remaining > 0 {
		detail.VotesRemaining = remaining
	}
	if night.HostID != nil {
		detail.HostName = names.lookup(ctx, *night.HostID)
	}

	for _, e := range entries {
		n := byID[e.ID]
		detail.Nominations = append(detail.Nominations, Nomination{
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
			NominatorName:  names.lookup(ctx, n.NominatedBy),
			CreatedAt:      n.CreatedAt,
			Votes:          e.Votes,
			MyVotes:        myVotes[n.ID],
			Voters:         votersByNomination[n.ID],
			IsBlocked:      e.Blocked,
			BlockedByMe:    blockedByMe[n.ID],
			IsWinner:       e.IsWinner,
			IsLeading:      e.IsLeading,
		})
	}

	statusByUser := make(map[string]string, len(attendance))
	for _, a := range attendance {
		statusByUser[a.UserID] = a.Status
	}
	if status, ok := statusByUser[principal.UserID]; ok {
		detail.MyAttendance = status
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		seen[m.UserID] = true
		status := statusByUser[m.UserID]
		if status == "" {
			status = persistence.AttendancePending
		}
		detail.Attendance = append(detail.Attendance, AttendanceEntry{UserID: m.UserID, DisplayName: m.DisplayName, Status: status})
	}
	for _, a := range attendance {
		if seen[a.UserID] {
			continue
		}
		detail.Attendance = append(detail.Attendance, AttendanceEntry{UserID: a.UserID, DisplayName: names.lookup(ctx, a.UserID), Status: a.Status})
	}
	return detail, nil
}

// SetHost assigns or clears the night's host. Requires canChangeHost.
func (s *MovieNightService) SetHost(ctx context.Context, principal Principal, nightID, hostID string) (night MovieNight, err error) {
	if s == nil {
		err = fmt.Errorf("MovieNightService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetHost", "principal_id", principal.UserID, "movie_night_id", nightID, "host_id", hostID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to set host", "")
			return
		}
		logger.InfoContext(ctx, "host changed")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanChangeHost {
		err = ErrUnauthorized
		return
	}
	if s.scope.cal.isLocked(scoped.night) {
		err = stateError(msgNightLocked)
		return
	}
	hostID = strings.TrimSpace(hostID)
	if hostID != "" {
		if err = s.ensureMember(ctx, scoped.night.GroupID, hostID); err != nil {
			return
		}
	}

	record := scoped.night
	record.HostID = ptr(hostID)
	record.UpdatedAt = s.now()
	if err = s.nights.UpdateMovieNight(ctx, record); err != nil {
		err = mapNightRepoError(err)
		return
	}
	night = s.scope.cal.toMovieNight(record)
	return
}

// CancelInput toggles a night's cancellation.
type CancelInput struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason" validate:"max=500"`
}

// CancelMovieNight cancels or reinstates a night. Requires canCancel.
func (s *MovieNightService) CancelMovieNight(ctx context.Context, principal Principal, nightID string, input CancelInput) (night MovieNight, err error) {
	if s == nil {
		err = fmt.Errorf("MovieNightService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CancelMovieNight", "principal_id", principal.UserID, "movie_night_id", nightID, "cancelled", input.Cancelled)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to change cancellation", "")
			return
		}
		logger.InfoContext(ctx, "cancellation changed")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanCancel {
		err = ErrUnauthorized
		return
	}
	if s.scope.cal.isArchived(scoped.night.Date) {
		err = stateError(msgNightLocked)
		return
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	record := scoped.night
	record.IsCancelled = input.Cancelled
	record.CancelReason = nil
	if input.Cancelled {
		record.CancelReason = ptr(input.Reason)
	}
	record.UpdatedAt = s.now()
	if err = s.nights.UpdateMovieNight(ctx, record); err != nil {
		err = mapNightRepoError(err)
		return
	}
	night = s.scope.cal.toMovieNight(record)
	return
}

// SetAttendance records the caller's own attendance.
func (s *MovieNightService) SetAttendance(ctx context.Context, principal Principal, nightID, status string) (err error) {
	if s == nil {
		return fmt.Errorf("MovieNightService is nil")
	}

	logger := s.loggerWith(ctx, "SetAttendance", "principal_id", principal.UserID, "movie_night_id", nightID, "status", status)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to set attendance", "")
			return
		}
		logger.DebugContext(ctx, "attendance set")
	}()

	scoped, err := s.scope.load(ctx, principal, nightID)
	if err != nil {
		return err
	}
	if !scoped.caps().CanVote {
		return ErrUnauthorized
	}
	if s.scope.cal.isLocked(scoped.night) {
		return stateError(msgNightLocked)
	}
	switch status {
	case persistence.AttendancePending, persistence.AttendanceAttending, persistence.AttendanceAbsent:
	default:
		return fieldError("status", "status must be one of: pending, attending, absent")
	}

	return mapNightRepoError(s.nights.UpsertAttendance(ctx, persistence.Attendance{
		MovieNightID: nightID,
		UserID:       principal.UserID,
		Status:       status,
		UpdatedAt:    s.now(),
	}))
}

// Decide sets the night's winner. With an empty nominationID the winner is
// the unblocked nomination with the most counted votes; ties go to the
// earliest nomination. An explicit pick replaces an existing winner.
// Requires canDecideWinner.
func (s *MovieNightService) Decide(ctx context.Context, principal Principal, nightID, nominationID string) (detail MovieNightDetail, err error) {
	if s == nil {
		err = fmt.Errorf("MovieNightService is nil")
		return
	}

	mode := "auto"
	if nominationID != "" {
		mode = "explicit"
	}
	logger := s.loggerWith(ctx, "Decide", "principal_id", principal.UserID, "movie_night_id", nightID, "mode", mode)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to decide movie night", "")
			return
		}
		metrics.RecordDecision(mode)
		logger.With("winner_id", detail.WinningNominationID).InfoContext(ctx, "movie night decided")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanDecideWinner {
		err = ErrUnauthorized
		return
	}
	if s.scope.cal.isLocked(scoped.night) {
		err = stateError(msgNightLocked)
		return
	}
	if scoped.night.Status == persistence.NightStatusDecided && nominationID == "" {
		err = stateError(msgAlreadyDecided)
		return
	}

	var winner string
	if nominationID != "" {
		winner, err = s.explicitWinner(ctx, nightID, nominationID)
	} else {
		winner, err = s.autoWinner(ctx, nightID)
	}
	if err != nil {
		return
	}

	record := scoped.night
	record.Status = persistence.NightStatusDecided
	record.WinningNominationID = &winner
	record.UpdatedAt = s.now()
	if err = s.nights.UpdateMovieNight(ctx, record); err != nil {
		err = mapNightRepoError(err)
		return
	}
	scoped.night = record
	detail, err = s.detail(ctx, principal, scoped)
	return
}

func (s *MovieNightService) explicitWinner(ctx context.Context, nightID, nominationID string) (string, error) {
	nomination, err := s.nominations.GetNomination(ctx, nominationID)
	if err != nil {
		return "", mapNightRepoError(err)
	}
	if nomination.MovieNightID != nightID {
		return "", ErrNotFound
	}
	blocks, err := s.nominations.ListBlocks(ctx, nightID)
	if err != nil {
		return "", err
	}
	for _, b := range blocks {
		if b.NominationID == nominationID {
			return "", stateError(msgNominationBlocked)
		}
	}
	return nominationID, nil
}

func (s *MovieNightService) autoWinner(ctx context.Context, nightID string) (string, error) {
	nominations, err := s.nominations.ListNominations(ctx, nightID)
	if err != nil {
		return "", err
	}
	votes, err := s.nominations.ListVotes(ctx, nightID)
	if err != nil {
		return "", err
	}
	blocks, err := s.nominations.ListBlocks(ctx, nightID)
	if err != nil {
		return "", err
	}
	attendance, err := s.nights.ListAttendance(ctx, nightID)
	if err != nil {
		return "", err
	}

	blocked := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		blocked[b.NominationID] = true
	}
	candidates := make([]tally.Candidate, 0, len(nominations))
	for _, n := range nominations {
		candidates = append(candidates, tally.Candidate{ID: n.ID, CreatedAt: n.CreatedAt, Blocked: blocked[n.ID]})
	}

	winner, err := tally.Decide(candidates, toTallyVotes(votes), toTallyAttendance(attendance))
	if errors.Is(err, tally.ErrNothingToDecide) {
		return "", stateError(msgNothingToDecide)
	}
	return winner, err
}

// UndoDecision clears the winner and reopens voting. Requires canDecideWinner.
func (s *MovieNightService) UndoDecision(ctx context.Context, principal Principal, nightID string) (detail MovieNightDetail, err error) {
	if s == nil {
		err = fmt.Errorf("MovieNightService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UndoDecision", "principal_id", principal.UserID, "movie_night_id", nightID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to undo decision", "")
			return
		}
		metrics.RecordDecision("undo")
		logger.InfoContext(ctx, "decision undone")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanDecideWinner {
		err = ErrUnauthorized
		return
	}

	record := scoped.night
	record.Status = persistence.NightStatusVoting
	record.WinningNominationID = nil
	record.UpdatedAt = s.now()
	if err = s.nights.UpdateMovieNight(ctx, record); err != nil {
		err = mapNightRepoError(err)
		return
	}
	scoped.night = record
	detail, err = s.detail(ctx, principal, scoped)
	return
}

func (s *MovieNightService) ensureMember(ctx context.Context, groupID, userID string) error {
	_, err := s.groups.GetMember(ctx, groupID, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return fieldError("hostId", "host must be a member of the group")
	}
	return err
}

// nameBook resolves display names, starting from the group's members and
// falling back to the users table for guests.
type nameBook struct {
	users persistence.UserRepository
	names map[string]string
}

func newNameBook(users persistence.UserRepository, members []persistence.GroupMember) *nameBook {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.DisplayName
	}
	return &nameBook{users: users, names: names}
}

func (b *nameBook) lookup(ctx context.Context, userID string) string {
	if name, ok := b.names[userID]; ok {
		return name
	}
	name := ""
	if b.users != nil {
		if u, err := b.users.GetUser(ctx, userID); err == nil {
			name = u.DisplayName
		}
	}
	b.names[userID] = name
	return name
}

func toTallyVotes(votes []persistence.Vote) []tally.Vote {
	out := make([]tally.Vote, 0, len(votes))
	for _, v := range votes {
		out = append(out, tally.Vote{NominationID: v.NominationID, UserID: v.UserID, Count: v.VoteCount})
	}
	return out
}

func toTallyAttendance(rows []persistence.Attendance) []tally.Attendance {
	out := make([]tally.Attendance, 0, len(rows))
	for _, a := range rows {
		out = append(out, tally.Attendance{UserID: a.UserID, Status: tally.AttendanceStatus(a.Status)})
	}
	return out
}

func mapNightRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("userId", "user does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("movieNight", "movie night fields are invalid")
	}
	return err
}
