package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/persistence"
)

// DefaultMaxVotesPerUser applies when a group is created without a cap.
const DefaultMaxVotesPerUser = 3

// GroupService orchestrates validation, authorization, and persistence for groups.
type GroupService struct {
	groups      persistence.GroupRepository
	users       persistence.UserRepository
	auth        authorizer
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGroupService constructs a group service with the provided dependencies.
func NewGroupService(groups persistence.GroupRepository, users persistence.UserRepository, idGenerator func() string, now func() time.Time) *GroupService {
	return NewGroupServiceWithLogger(groups, users, idGenerator, now, nil)
}

// NewGroupServiceWithLogger constructs a group service with a specified logger.
func NewGroupServiceWithLogger(groups persistence.GroupRepository, users persistence.UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{
		groups:      groups,
		users:       users,
		auth:        authorizer{groups: groups},
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *GroupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GroupService", operation, attrs...)
}

// GroupInput carries editable group fields. A nil InvitePIN leaves the PIN
// unchanged on update; an empty one clears it.
type GroupInput struct {
	Name            string  `json:"name" validate:"required,max=100"`
	Description     string  `json:"description" validate:"max=500"`
	MaxVotesPerUser int     `json:"maxVotesPerUser" validate:"min=0,max=20"`
	SharingEnabled  bool    `json:"sharingEnabled"`
	InvitePIN       *string `json:"invitePin" validate:"omitempty,pin"`
}

// ListGroups returns the caller's groups. Global admins see every group.
func (s *GroupService) ListGroups(ctx context.Context, principal Principal) ([]Group, error) {
	if s == nil {
		return nil, fmt.Errorf("GroupService is nil")
	}
	if err := requireMember(principal); err != nil {
		return nil, err
	}

	var (
		records []persistence.Group
		err     error
	)
	if principal.IsAppAdmin || principal.IsAdmin {
		records, err = s.groups.ListGroups(ctx)
	} else {
		records, err = s.groups.ListGroupsForUser(ctx, principal.UserID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Group, 0, len(records))
	for _, record := range records {
		role := access.Resolve(ctx, principal.accessSession(), access.Scope{GroupID: record.ID}, membershipLookup{groups: s.groups})
		out = append(out, toGroup(record, role))
	}
	return out, nil
}

// CreateGroup creates a group with the caller as its admin.
func (s *GroupService) CreateGroup(ctx context.Context, principal Principal, input GroupInput) (group Group, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateGroup", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create group", "")
			return
		}
		logger.With("group_id", group.ID).InfoContext(ctx, "group created")
	}()

	if err = requireMember(principal); err != nil {
		return
	}
	input = normalizeGroupInput(input)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	record := persistence.Group{
		ID:              s.idGenerator(),
		Name:            input.Name,
		Description:     ptr(input.Description),
		MaxVotesPerUser: input.MaxVotesPerUser,
		SharingEnabled:  input.SharingEnabled,
		CreatedBy:       principal.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.InvitePIN != nil {
		record.InvitePIN = ptr(*input.InvitePIN)
	}
	if record.MaxVotesPerUser == 0 {
		record.MaxVotesPerUser = DefaultMaxVotesPerUser
	}
	owner := persistence.GroupMember{
		GroupID:  record.ID,
		UserID:   principal.UserID,
		Role:     persistence.MemberRoleAdmin,
		JoinedAt: now,
	}
	if err = s.groups.CreateGroup(ctx, record, owner); err != nil {
		err = mapGroupRepoError(err)
		return
	}

	role := access.Resolve(ctx, principal.accessSession(), access.Scope{GroupID: record.ID}, membershipLookup{groups: s.groups})
	group = toGroup(record, role)
	return
}

// GetGroup returns a group with its members.
func (s *GroupService) GetGroup(ctx context.Context, principal Principal, groupID string) (Group, error) {
	if s == nil {
		return Group{}, fmt.Errorf("GroupService is nil")
	}

	record, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, mapGroupRepoError(err)
	}
	role, err := s.auth.groupRole(ctx, principal, groupID, "")
	if err != nil {
		return Group{}, err
	}

	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	group := toGroup(record, role)
	for _, m := range members {
		group.Members = append(group.Members, toGroupMember(m))
	}
	return group, nil
}

// UpdateGroup edits a group. Requires canManageMembers.
func (s *GroupService) UpdateGroup(ctx context.Context, principal Principal, groupID string, input GroupInput) (group Group, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateGroup", "principal_id", principal.UserID, "group_id", groupID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update group", "")
			return
		}
		logger.InfoContext(ctx, "group updated")
	}()

	var record persistence.Group
	record, err = s.groups.GetGroup(ctx, groupID)
	if err != nil {
		err = mapGroupRepoError(err)
		return
	}
	var role access.Role
	role, err = s.requireGroupCapability(ctx, principal, groupID, func(c access.Capabilities) bool { return c.CanManageMembers })
	if err != nil {
		return
	}

	input = normalizeGroupInput(input)
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	record.Name = input.Name
	record.Description = ptr(input.Description)
	if input.MaxVotesPerUser > 0 {
		record.MaxVotesPerUser = input.MaxVotesPerUser
	}
	record.SharingEnabled = input.SharingEnabled
	if input.InvitePIN != nil {
		record.InvitePIN = ptr(*input.InvitePIN)
	}
	record.UpdatedAt = s.now()

	if err = s.groups.UpdateGroup(ctx, record); err != nil {
		err = mapGroupRepoError(err)
		return
	}
	group = toGroup(record, role)
	return
}

// DeleteGroup removes a group and everything under it. Requires canDeleteGroup.
func (s *GroupService) DeleteGroup(ctx context.Context, principal Principal, groupID string) (err error) {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteGroup", "principal_id", principal.UserID, "group_id", groupID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete group", "")
			return
		}
		logger.InfoContext(ctx, "group deleted")
	}()

	if _, err = s.groups.GetGroup(ctx, groupID); err != nil {
		return mapGroupRepoError(err)
	}
	if _, err = s.requireGroupCapability(ctx, principal, groupID, func(c access.Capabilities) bool { return c.CanDeleteGroup }); err != nil {
		return
	}
	return mapGroupRepoError(s.groups.DeleteGroup(ctx, groupID))
}

// MemberInput adds or changes a membership.
type MemberInput struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=member admin"`
}

// AddMember adds a user to a group. Requires canManageMembers.
func (s *GroupService) AddMember(ctx context.Context, principal Principal, groupID string, input MemberInput) (member GroupMember, err error) {
	if s == nil {
		err = fmt.Errorf("GroupService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddMember", "principal_id", principal.UserID, "group_id", groupID, "user_id", input.UserID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to add member", "")
			return
		}
		logger.InfoContext(ctx, "member added")
	}()

	if _, err = s.groups.GetGroup(ctx, groupID); err != nil {
		err = mapGroupRepoError(err)
		return
	}
	if _, err = s.requireGroupCapability(ctx, principal, groupID, func(c access.Capabilities) bool { return c.CanManageMembers }); err != nil {
		return
	}
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if input.Role == "" {
		input.Role = persistence.MemberRoleMember
	}

	if _, err = s.users.GetUser(ctx, input.UserID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = fieldError("userId", "user does not exist")
		}
		return
	}

	record := persistence.GroupMember{GroupID: groupID, UserID: input.UserID, Role: input.Role, JoinedAt: s.now()}
	if err = s.groups.AddMember(ctx, record); err != nil {
		err = mapGroupRepoError(err)
		return
	}

	var stored persistence.GroupMember
	stored, err = s.groups.GetMember(ctx, groupID, input.UserID)
	if err != nil {
		err = mapGroupRepoError(err)
		return
	}
	member = toGroupMember(stored)
	return
}

// UpdateMemberRole changes a member's role. Requires canManageMembers.
func (s *GroupService) UpdateMemberRole(ctx context.Context, principal Principal, groupID, userID, role string) (err error) {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}

	logger := s.loggerWith(ctx, "UpdateMemberRole", "principal_id", principal.UserID, "group_id", groupID, "user_id", userID, "role", role)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update member role", "")
			return
		}
		logger.InfoContext(ctx, "member role updated")
	}()

	if _, err = s.requireGroupCapability(ctx, principal, groupID, func(c access.Capabilities) bool { return c.CanManageMembers }); err != nil {
		return
	}
	if role != persistence.MemberRoleMember && role != persistence.MemberRoleAdmin {
		return fieldError("role", "role must be one of: member, admin")
	}
	return mapGroupRepoError(s.groups.UpdateMemberRole(ctx, groupID, userID, role))
}

// RemoveMember removes a member. Members may always remove themselves.
func (s *GroupService) RemoveMember(ctx context.Context, principal Principal, groupID, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}

	logger := s.loggerWith(ctx, "RemoveMember", "principal_id", principal.UserID, "group_id", groupID, "user_id", userID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to remove member", "")
			return
		}
		logger.InfoContext(ctx, "member removed")
	}()

	if userID != principal.UserID {
		if _, err = s.requireGroupCapability(ctx, principal, groupID, func(c access.Capabilities) bool { return c.CanManageMembers }); err != nil {
			return
		}
	} else if err = requireMember(principal); err != nil {
		return
	}
	return mapGroupRepoError(s.groups.RemoveMember(ctx, groupID, userID))
}

func (s *GroupService) requireGroupCapability(ctx context.Context, principal Principal, groupID string, allowed func(access.Capabilities) bool) (access.Role, error) {
	role, err := s.auth.groupRole(ctx, principal, groupID, "")
	if err != nil {
		return role, err
	}
	if !allowed(access.CapabilitiesFor(role)) {
		return role, ErrUnauthorized
	}
	return role, nil
}

func normalizeGroupInput(input GroupInput) GroupInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.InvitePIN != nil {
		pin := strings.TrimSpace(*input.InvitePIN)
		input.InvitePIN = &pin
	}
	return input
}

func toGroup(g persistence.Group, role access.Role) Group {
	caps := access.CapabilitiesFor(role)
	group := Group{
		ID:              g.ID,
		Name:            g.Name,
		Description:     deref(g.Description),
		MaxVotesPerUser: g.MaxVotesPerUser,
		SharingEnabled:  g.SharingEnabled,
		HasInvitePIN:    g.InvitePIN != nil,
		CreatedBy:       g.CreatedBy,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
		Role:            role,
		Capabilities:    caps,
	}
	if caps.CanManageInvites {
		group.InvitePIN = deref(g.InvitePIN)
	}
	return group
}

func mapGroupRepoError(err error) error {
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
		return fieldError("group", "group fields are invalid")
	}
	return err
}
