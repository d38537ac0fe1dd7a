package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/metrics"
	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/ratelimit"
)

// DefaultGuestSessionTTL bounds guest sessions for invites without an expiry.
const DefaultGuestSessionTTL = 7 * 24 * time.Hour

// GuestDirectory creates the local users that invites sign in as.
type GuestDirectory interface {
	CreateGuest(ctx context.Context, displayName string) (User, error)
}

// GuestSessionIssuer issues night-scoped sessions and their cookie value.
type GuestSessionIssuer interface {
	IssueGuestSession(ctx context.Context, userID, movieNightID string, ttl time.Duration) (Session, string, error)
}

// InviteService manages guest invite links.
type InviteService struct {
	invites        persistence.InviteRepository
	nominations    persistence.NominationRepository
	scope          nightScope
	guests         GuestDirectory
	sessions       GuestSessionIssuer
	pinAttempts    *ratelimit.Limiter
	guestTTL       time.Duration
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	logger         *slog.Logger
}

// InviteServiceConfig groups the invite service's collaborators.
type InviteServiceConfig struct {
	Groups         persistence.GroupRepository
	Nights         persistence.MovieNightRepository
	Nominations    persistence.NominationRepository
	Invites        persistence.InviteRepository
	Guests         GuestDirectory
	Sessions       GuestSessionIssuer
	PINAttempts    *ratelimit.Limiter
	Location       *time.Location
	GuestTTL       time.Duration
	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewInviteService wires dependencies for invite operations.
func NewInviteService(cfg InviteServiceConfig) *InviteService {
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.TokenGenerator == nil {
		cfg.TokenGenerator = NewToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.GuestTTL <= 0 {
		cfg.GuestTTL = DefaultGuestSessionTTL
	}
	if cfg.PINAttempts == nil {
		cfg.PINAttempts = ratelimit.NewLimiter(nil, 5, time.Minute, cfg.Now)
	}
	return &InviteService{
		invites:        cfg.Invites,
		nominations:    cfg.Nominations,
		scope:          nightScope{groups: cfg.Groups, nights: cfg.Nights, auth: authorizer{groups: cfg.Groups}, cal: newCalendar(cfg.Location, cfg.Now)},
		guests:         cfg.Guests,
		sessions:       cfg.Sessions,
		pinAttempts:    cfg.PINAttempts,
		guestTTL:       cfg.GuestTTL,
		idGenerator:    cfg.IDGenerator,
		tokenGenerator: cfg.TokenGenerator,
		now:            cfg.Now,
		logger:         defaultLogger(cfg.Logger),
	}
}

func (s *InviteService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "InviteService", operation, attrs...)
}

// CreateInviteInput sets an optional lifetime in hours; zero never expires.
type CreateInviteInput struct {
	ExpiresInHours int `json:"expiresInHours" validate:"min=0,max=8760"`
}

// CreateInvite issues an invite link for a night. Requires canManageInvites
// and a group with sharing enabled.
func (s *InviteService) CreateInvite(ctx context.Context, principal Principal, nightID string, input CreateInviteInput) (invite Invite, err error) {
	if s == nil {
		err = fmt.Errorf("InviteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateInvite", "principal_id", principal.UserID, "movie_night_id", nightID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create invite", "")
			return
		}
		logger.With("invite_id", invite.ID).InfoContext(ctx, "invite created")
	}()

	var scoped scopedNight
	if scoped, err = s.scope.load(ctx, principal, nightID); err != nil {
		return
	}
	if !scoped.caps().CanManageInvites {
		err = ErrUnauthorized
		return
	}
	if !scoped.group.SharingEnabled {
		err = stateError(msgSharingDisabled)
		return
	}
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	record := persistence.GuestInvite{
		ID:           s.idGenerator(),
		Token:        s.tokenGenerator(),
		MovieNightID: nightID,
		CreatedBy:    principal.UserID,
		CreatedAt:    now,
	}
	if input.ExpiresInHours > 0 {
		expires := now.Add(time.Duration(input.ExpiresInHours) * time.Hour)
		record.ExpiresAt = &expires
	}
	if err = s.invites.CreateInvite(ctx, record); err != nil {
		err = mapInviteRepoError(err)
		return
	}
	invite = toInvite(record, now)
	return
}

// ListInvites returns a night's invites, newest first.
func (s *InviteService) ListInvites(ctx context.Context, principal Principal, nightID string) ([]Invite, error) {
	if s == nil {
		return nil, fmt.Errorf("InviteService is nil")
	}
	scoped, err := s.scope.load(ctx, principal, nightID)
	if err != nil {
		return nil, err
	}
	if !scoped.caps().CanManageInvites {
		return nil, ErrUnauthorized
	}

	records, err := s.invites.ListInvites(ctx, nightID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Invite, 0, len(records))
	for _, record := range records {
		out = append(out, toInvite(record, now))
	}
	return out, nil
}

// RevokeInvite deletes an invite. Guests already joined keep their session
// until it expires.
func (s *InviteService) RevokeInvite(ctx context.Context, principal Principal, inviteID string) (err error) {
	if s == nil {
		return fmt.Errorf("InviteService is nil")
	}

	logger := s.loggerWith(ctx, "RevokeInvite", "principal_id", principal.UserID, "invite_id", inviteID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to revoke invite", "")
			return
		}
		logger.InfoContext(ctx, "invite revoked")
	}()

	invite, err := s.invites.GetInvite(ctx, inviteID)
	if err != nil {
		return mapInviteRepoError(err)
	}
	scoped, err := s.scope.load(ctx, principal, invite.MovieNightID)
	if err != nil {
		return err
	}
	if !scoped.caps().CanManageInvites {
		return ErrUnauthorized
	}
	return mapInviteRepoError(s.invites.DeleteInvite(ctx, inviteID))
}

// ValidateInvite checks an invite link and, when it is usable, summarises
// the night it leads to. A group PIN is required when set: without one the
// summary only reports RequiresPIN, and wrong PINs count towards a lockout
// keyed by token and client address.
func (s *InviteService) ValidateInvite(ctx context.Context, token, pin, clientIP string) (summary InviteSummary, err error) {
	if s == nil {
		err = fmt.Errorf("InviteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ValidateInvite", "client_ip", clientIP)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "invite validation failed", "")
		}
	}()

	var resolved resolvedInvite
	resolved, err = s.resolve(ctx, token, pin, clientIP)
	summary = resolved.summary
	return
}

// JoinInput is the guest's chosen name and the group PIN, if any.
type JoinInput struct {
	DisplayName string `json:"displayName" validate:"required,max=100"`
	PIN         string `json:"pin"`
}

// JoinInvite redeems an invite: it creates a guest user and a session that
// can only read the invite's night.
func (s *InviteService) JoinInvite(ctx context.Context, token string, input JoinInput, clientIP string) (result JoinResult, err error) {
	if s == nil {
		err = fmt.Errorf("InviteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "JoinInvite", "client_ip", clientIP)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to join invite", "")
			return
		}
		logger.With("user_id", result.User.ID, "movie_night_id", result.Summary.MovieNightID).InfoContext(ctx, "guest joined")
	}()

	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.PIN = strings.TrimSpace(input.PIN)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var resolved resolvedInvite
	if resolved, err = s.resolve(ctx, token, input.PIN, clientIP); err != nil {
		return
	}
	if resolved.summary.RequiresPIN {
		err = fieldError("pin", "pin is required")
		return
	}

	var guest User
	if guest, err = s.guests.CreateGuest(ctx, input.DisplayName); err != nil {
		return
	}

	ttl := s.guestTTL
	if resolved.invite.ExpiresAt != nil {
		if until := resolved.invite.ExpiresAt.Sub(s.now()); until < ttl {
			ttl = until
		}
	}
	var (
		session Session
		cookie  string
	)
	if session, cookie, err = s.sessions.IssueGuestSession(ctx, guest.ID, resolved.invite.MovieNightID, ttl); err != nil {
		return
	}

	result = JoinResult{User: guest, Session: session, Cookie: cookie, Summary: resolved.summary}
	return
}

type resolvedInvite struct {
	invite  persistence.GuestInvite
	summary InviteSummary
}

func (s *InviteService) resolve(ctx context.Context, token, pin, clientIP string) (resolvedInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return resolvedInvite{}, ErrNotFound
	}
	invite, err := s.invites.GetInviteByToken(ctx, token)
	if err != nil {
		return resolvedInvite{}, mapInviteRepoError(err)
	}
	if invite.ExpiresAt != nil && !invite.ExpiresAt.After(s.now()) {
		return resolvedInvite{}, ErrGone
	}

	night, err := s.scope.nights.GetMovieNight(ctx, invite.MovieNightID)
	if err != nil {
		return resolvedInvite{}, mapInviteRepoError(err)
	}
	group, err := s.scope.groups.GetGroup(ctx, night.GroupID)
	if err != nil {
		return resolvedInvite{}, mapInviteRepoError(err)
	}

	if expected := deref(group.InvitePIN); expected != "" {
		if pin == "" {
			return resolvedInvite{invite: invite, summary: InviteSummary{RequiresPIN: true}}, nil
		}
		if err := s.checkPIN(ctx, token+"|"+clientIP, expected, pin); err != nil {
			return resolvedInvite{}, err
		}
	}

	nominations, err := s.nominations.ListNominations(ctx, night.ID)
	if err != nil {
		return resolvedInvite{}, err
	}
	return resolvedInvite{
		invite: invite,
		summary: InviteSummary{
			MovieNightID:    night.ID,
			GroupName:       group.Name,
			Date:            night.Date,
			Time:            night.Time,
			Status:          night.Status,
			NominationCount: len(nominations),
		},
	}, nil
}

// checkPIN compares a PIN once the caller is not locked out, recording
// failures and clearing them on success.
func (s *InviteService) checkPIN(ctx context.Context, key, expected, given string) error {
	locked, retryAfter, err := s.pinAttempts.Check(ctx, key)
	if err != nil {
		return err
	}
	if locked {
		metrics.RecordInviteLockout()
		return &RateLimitError{RetryAfter: retryAfter}
	}
	if given != expected {
		if err := s.pinAttempts.Fail(ctx, key); err != nil {
			return err
		}
		return ErrIncorrectPIN
	}
	return s.pinAttempts.Reset(ctx, key)
}

// PrunePINAttempts drops failure records that have left the lockout window.
func (s *InviteService) PrunePINAttempts(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("InviteService is nil")
	}
	return s.pinAttempts.Prune(ctx)
}

func mapInviteRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}
