package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/movienight/internal/clients/plex"
	"github.com/example/movienight/internal/persistence"
)

// PlexAuthenticator is the part of the integration hub sign-in relies on.
type PlexAuthenticator interface {
	CreatePlexPIN(ctx context.Context) (plex.PIN, error)
	CheckPlexPIN(ctx context.Context, id int) (plex.Account, string, bool, error)
	PlexOwner(ctx context.Context) (plex.Account, error)
	PlexFriends(ctx context.Context) ([]plex.Account, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// LoginResult is the outcome of a completed sign-in.
type LoginResult struct {
	User    User
	Session Session
	// Pending is set while a Plex PIN is not yet approved.
	Pending bool
	// Created is set when the sign-in created the account.
	Created bool
}

// AuthService coordinates Plex and local sign-in, sessions and guest cookies.
type AuthService struct {
	users          persistence.UserRepository
	sessions       persistence.SessionRepository
	plex           PlexAuthenticator
	guestTokens    *GuestTokenSigner
	verifyPassword PasswordVerifier
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users persistence.UserRepository, sessions persistence.SessionRepository, plexAuth PlexAuthenticator, guestTokens *GuestTokenSigner, idGenerator, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(users, sessions, plexAuth, guestTokens, idGenerator, tokenGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users persistence.UserRepository, sessions persistence.SessionRepository, plexAuth PlexAuthenticator, guestTokens *GuestTokenSigner, idGenerator, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if tokenGenerator == nil {
		tokenGenerator = NewToken
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &AuthService{
		users:          users,
		sessions:       sessions,
		plex:           plexAuth,
		guestTokens:    guestTokens,
		verifyPassword: VerifyPassword,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// PlexPIN is a pending plex.tv sign-in.
type PlexPIN struct {
	ID      int
	Code    string
	AuthURL string
}

// StartPlexLogin creates a plex.tv PIN for the browser to approve.
func (s *AuthService) StartPlexLogin(ctx context.Context) (pin PlexPIN, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	logger := s.loggerWith(ctx, "StartPlexLogin")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to create plex pin", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var created plex.PIN
	created, err = s.plex.CreatePlexPIN(ctx)
	if err != nil {
		err = fmt.Errorf("create plex pin: %w", err)
		return
	}
	pin = PlexPIN{ID: created.ID, Code: created.Code, AuthURL: created.AuthURL}
	return
}

// CompletePlexLogin polls a PIN. Once approved it signs the account in. The
// very first account becomes app admin; later new accounts must be the
// server owner or one of the owner's Plex friends.
func (s *AuthService) CompletePlexLogin(ctx context.Context, pinID int) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CompletePlexLogin", "pin_id", pinID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "plex login failed", "")
			return
		}
		if !result.Pending {
			logger.With("user_id", result.User.ID, "created", result.Created).InfoContext(ctx, "plex login succeeded")
		}
	}()

	if pinID <= 0 {
		err = fieldError("id", "id is invalid")
		return
	}

	account, _, ok, checkErr := s.plex.CheckPlexPIN(ctx, pinID)
	if checkErr != nil {
		err = fmt.Errorf("check plex pin: %w", checkErr)
		return
	}
	if !ok {
		result.Pending = true
		return
	}

	plexID := strconv.FormatInt(account.ID, 10)
	now := s.now()

	user, lookupErr := s.users.GetUserByPlexID(ctx, plexID)
	switch {
	case lookupErr == nil:
		user.DisplayName = account.DisplayName()
		user.AvatarURL = ptr(account.Thumb)
		if account.Email != "" {
			user.Email = ptr(account.Email)
		}
		user.UpdatedAt = now
		if err = s.users.UpdateUser(ctx, user); err != nil {
			err = mapUserRepoError(err)
			return
		}
	case errors.Is(lookupErr, persistence.ErrNotFound):
		user, err = s.createPlexUser(ctx, account, plexID, now)
		if err != nil {
			return
		}
		result.Created = true
	default:
		err = lookupErr
		return
	}

	var session Session
	session, err = s.issueSession(ctx, user.ID, "", s.sessionTTL)
	if err != nil {
		return
	}
	result.User = toUser(user)
	result.Session = session
	return
}

func (s *AuthService) createPlexUser(ctx context.Context, account plex.Account, plexID string, now time.Time) (persistence.User, error) {
	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return persistence.User{}, err
	}
	first := count == 0
	if !first {
		if err := s.ensureServerFriend(ctx, account); err != nil {
			return persistence.User{}, err
		}
	}

	username, err := s.availableUsername(ctx, account.Username, plexID)
	if err != nil {
		return persistence.User{}, err
	}
	user := persistence.User{
		ID:          s.idGenerator(),
		PlexID:      &plexID,
		Username:    username,
		DisplayName: account.DisplayName(),
		Email:       ptr(account.Email),
		AvatarURL:   ptr(account.Thumb),
		IsAppAdmin:  first,
		IsAdmin:     first,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return persistence.User{}, mapUserRepoError(err)
	}
	return user, nil
}

func (s *AuthService) ensureServerFriend(ctx context.Context, account plex.Account) error {
	owner, err := s.plex.PlexOwner(ctx)
	if err != nil {
		return ErrUnauthorized
	}
	if owner.ID == account.ID {
		return nil
	}
	friends, err := s.plex.PlexFriends(ctx)
	if err != nil {
		return ErrUnauthorized
	}
	for _, friend := range friends {
		if friend.ID == account.ID {
			return nil
		}
	}
	return ErrUnauthorized
}

// availableUsername keeps the Plex username unless a local account already
// holds it.
func (s *AuthService) availableUsername(ctx context.Context, preferred, plexID string) (string, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		preferred = "plex-" + plexID
	}
	candidate := preferred
	for i := 2; i < 100; i++ {
		_, err := s.users.GetUserByUsername(ctx, candidate)
		if errors.Is(err, persistence.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", preferred, i)
	}
	return preferred + "-" + plexID, nil
}

// LocalLoginInput is the body of a local sign-in.
type LocalLoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LocalLogin signs in a local user with a password.
func (s *AuthService) LocalLogin(ctx context.Context, input LocalLoginInput) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	username := strings.TrimSpace(input.Username)
	logger := s.loggerWith(ctx, "LocalLogin", "username", username)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "local login failed", "")
			return
		}
		logger.With("user_id", result.User.ID, "session_id", result.Session.ID).InfoContext(ctx, "local login succeeded")
	}()

	if username == "" || input.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var user persistence.User
	user, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		err = ErrInvalidCredentials
		return
	}
	if verifyErr := s.verifyPassword(*user.PasswordHash, input.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	var session Session
	session, err = s.issueSession(ctx, user.ID, "", s.sessionTTL)
	if err != nil {
		return
	}
	result = LoginResult{User: toUser(user), Session: session}
	return
}

// issueSession persists a new session, pruning expired ones first.
func (s *AuthService) issueSession(ctx context.Context, userID, movieNightID string, ttl time.Duration) (Session, error) {
	now := s.now()
	if _, err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return Session{}, err
	}

	session := persistence.Session{
		ID:            s.idGenerator(),
		UserID:        userID,
		Token:         s.tokenGenerator(),
		IsLocalInvite: movieNightID != "",
		MovieNightID:  ptr(movieNightID),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	persisted, err := s.sessions.CreateSession(ctx, session)
	if err != nil {
		return Session{}, err
	}
	return toSession(persisted), nil
}

// IssueGuestSession creates an invite-scoped session and its signed cookie.
func (s *AuthService) IssueGuestSession(ctx context.Context, userID, movieNightID string, ttl time.Duration) (Session, string, error) {
	if movieNightID == "" {
		return Session{}, "", fmt.Errorf("guest session requires a movie night")
	}
	if ttl <= 0 {
		ttl = s.sessionTTL
	}
	session, err := s.issueSession(ctx, userID, movieNightID, ttl)
	if err != nil {
		return Session{}, "", err
	}
	if s.guestTokens == nil {
		return session, session.Token, nil
	}
	cookie, err := s.guestTokens.Sign(ctx, session)
	if err != nil {
		return Session{}, "", err
	}
	return session, cookie, nil
}

// RevokeSession invalidates a session token. Guest cookies are accepted.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}
	if s.guestTokens != nil && LooksLikeGuestToken(trimmed) {
		claims, err := s.guestTokens.Parse(ctx, trimmed)
		if err != nil {
			return ErrInvalidCredentials
		}
		trimmed = claims.SessionToken
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	if err := s.sessions.RevokeSession(ctx, trimmed, s.now()); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.WarnContext(ctx, "failed to revoke session", "error", ErrInvalidCredentials, "error_kind", ErrorKind(ErrInvalidCredentials))
			return ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

// ValidateSession resolves a cookie value to its principal. Role flags are
// read from the user row so changes apply on the next request.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.DebugContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if trimmed == "" {
		err = ErrUnauthenticated
		return
	}

	var expectNight string
	if s.guestTokens != nil && LooksLikeGuestToken(trimmed) {
		var claims GuestClaims
		claims, err = s.guestTokens.Parse(ctx, trimmed)
		if err != nil {
			return
		}
		trimmed = claims.SessionToken
		expectNight = claims.MovieNightID
	}

	var session persistence.Session
	session, err = s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}

	now := s.now()
	if session.RevokedAt != nil {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.After(now) {
		err = ErrSessionExpired
		return
	}
	if session.IsLocalInvite && s.guestTokens != nil && deref(session.MovieNightID) != expectNight {
		err = ErrUnauthenticated
		return
	}

	var user persistence.User
	user, err = s.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthenticated
		}
		return
	}

	principal = Principal{
		UserID:        user.ID,
		PlexID:        deref(user.PlexID),
		IsAdmin:       user.IsAdmin,
		IsAppAdmin:    user.IsAppAdmin,
		IsLocalInvite: session.IsLocalInvite,
		MovieNightID:  deref(session.MovieNightID),
	}
	return
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, principal Principal) (User, error) {
	if !principal.Authenticated() {
		return User{}, ErrUnauthenticated
	}
	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return toUser(user), nil
}

// PruneSessions deletes expired and revoked sessions.
func (s *AuthService) PruneSessions(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpiredSessions(ctx, s.now())
}
