package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/persistence"
)

// UserService manages accounts.
type UserService struct {
	users        persistence.UserRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewUserService constructs a user service with the provided dependencies.
func NewUserService(users persistence.UserRepository, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, idGenerator, now, nil)
}

// NewUserServiceWithLogger constructs a user service with a specified logger.
func NewUserServiceWithLogger(users persistence.UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:        users,
		hashPassword: HashPassword,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// CreateUserInput describes a new local user. Password may be empty for
// accounts that only exist to be added to groups.
type CreateUserInput struct {
	Username    string `json:"username" validate:"required,min=2,max=64"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Password    string `json:"password" validate:"omitempty,min=8,max=128"`
}

// ListUsers returns every account. Any signed-in member may list users.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if err := requireMember(principal); err != nil {
		return nil, err
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, toUser(u))
	}
	return out, nil
}

// CreateLocalUser creates a local account. Any member may do this.
func (s *UserService) CreateLocalUser(ctx context.Context, principal Principal, input CreateUserInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	input.DisplayName = strings.TrimSpace(input.DisplayName)

	logger := s.loggerWith(ctx, "CreateLocalUser", "principal_id", principal.UserID, "username", input.Username)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create user", "")
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user created")
	}()

	if err = requireMember(principal); err != nil {
		return
	}
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if input.DisplayName == "" {
		input.DisplayName = input.Username
	}

	now := s.now()
	record := persistence.User{
		ID:          s.idGenerator(),
		Username:    input.Username,
		DisplayName: input.DisplayName,
		IsLocal:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Password != "" {
		var hash string
		hash, err = s.hashPassword(input.Password)
		if err != nil {
			return
		}
		record.PasswordHash = &hash
	}

	if err = s.users.CreateUser(ctx, record); err != nil {
		err = mapUserRepoError(err)
		return
	}
	user = toUser(record)
	return
}

// SetAdmin toggles the global admin flag.
func (s *UserService) SetAdmin(ctx context.Context, principal Principal, userID string, isAdmin bool) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetAdmin", "principal_id", principal.UserID, "user_id", userID, "is_admin", isAdmin)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update admin flag", "")
			return
		}
		logger.InfoContext(ctx, "admin flag updated")
	}()

	if err = requireApp(principal, canToggleAdmin); err != nil {
		return
	}

	var record persistence.User
	record, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserRepoError(err)
		return
	}
	record.IsAdmin = isAdmin
	record.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, record); err != nil {
		err = mapUserRepoError(err)
		return
	}
	user = toUser(record)
	return
}

// DeleteUser removes an account. App admins cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, principal Principal, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteUser", "principal_id", principal.UserID, "user_id", userID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete user", "")
			return
		}
		logger.InfoContext(ctx, "user deleted")
	}()

	if err = requireApp(principal, canManageUsers); err != nil {
		return
	}
	if userID == principal.UserID {
		return stateError("you cannot delete your own account")
	}
	if err = s.users.DeleteUser(ctx, userID); err != nil {
		return mapUserRepoError(err)
	}
	return nil
}

// CreateGuest creates the local account backing an invite session.
func (s *UserService) CreateGuest(ctx context.Context, displayName string) (User, error) {
	now := s.now()
	id := s.idGenerator()
	record := persistence.User{
		ID:          id,
		Username:    "guest-" + id,
		DisplayName: displayName,
		IsLocal:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.CreateUser(ctx, record); err != nil {
		return User{}, mapUserRepoError(err)
	}
	return toUser(record), nil
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return fieldError("username", "username is already taken")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("username", "username is required")
	}
	return err
}
