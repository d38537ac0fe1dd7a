// Package access resolves a caller's effective role and the capabilities
// that role grants.
package access

import "context"

// Role is the effective role of a caller in a given scope.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
	RoleAppAdmin Role = "app_admin"
)

// MembershipRoleAdmin is the group_members role value granting ADMIN.
const MembershipRoleAdmin = "admin"

// Session carries the identity facts the resolver needs.
type Session struct {
	UserID        string
	IsAdmin       bool
	IsAppAdmin    bool
	IsLocalInvite bool
}

// Scope narrows resolution to a group and, optionally, one of its movie nights.
type Scope struct {
	GroupID string
	// HostID is the host of the movie night in scope, if any.
	HostID string
}

// MembershipLookup returns the caller's membership role in a group. found is
// false when the user is not a member.
type MembershipLookup interface {
	MembershipRole(ctx context.Context, groupID, userID string) (role string, found bool, err error)
}

// MembershipLookupFunc adapts a function to MembershipLookup.
type MembershipLookupFunc func(ctx context.Context, groupID, userID string) (string, bool, error)

func (f MembershipLookupFunc) MembershipRole(ctx context.Context, groupID, userID string) (string, bool, error) {
	return f(ctx, groupID, userID)
}

// Resolve computes the caller's role. The first matching rule wins; a failed
// membership lookup counts as no admin membership.
func Resolve(ctx context.Context, session Session, scope Scope, members MembershipLookup) Role {
	switch {
	case session.UserID == "":
		return RoleGuest
	case session.IsLocalInvite:
		return RoleGuest
	case session.IsAppAdmin:
		return RoleAppAdmin
	case session.IsAdmin:
		return RoleAdmin
	}

	if scope.GroupID != "" && members != nil {
		role, found, err := members.MembershipRole(ctx, scope.GroupID, session.UserID)
		if err == nil && found && role == MembershipRoleAdmin {
			return RoleAdmin
		}
	}
	if scope.HostID != "" && scope.HostID == session.UserID {
		return RoleAdmin
	}
	return RoleMember
}

// Capabilities is the flat permission set handed to handlers and clients.
type Capabilities struct {
	CanVote           bool `json:"canVote"`
	CanNominate       bool `json:"canNominate"`
	CanChangeHost     bool `json:"canChangeHost"`
	CanDecideWinner   bool `json:"canDecideWinner"`
	CanCancel         bool `json:"canCancel"`
	CanManageMembers  bool `json:"canManageMembers"`
	CanDeleteGroup    bool `json:"canDeleteGroup"`
	CanManageInvites  bool `json:"canManageInvites"`
	CanAccessSettings bool `json:"canAccessSettings"`
	CanManageUsers    bool `json:"canManageUsers"`
	CanToggleAdmin    bool `json:"canToggleAdmin"`
	CanManageCaches   bool `json:"canManageCaches"`
}

// CapabilitiesFor derives capabilities from a role.
func CapabilitiesFor(role Role) Capabilities {
	member := role == RoleMember || role == RoleAdmin || role == RoleAppAdmin
	admin := role == RoleAdmin || role == RoleAppAdmin
	appAdmin := role == RoleAppAdmin

	return Capabilities{
		CanVote:           member,
		CanNominate:       member,
		CanChangeHost:     member,
		CanDecideWinner:   member,
		CanCancel:         member,
		CanManageMembers:  admin,
		CanDeleteGroup:    admin,
		CanManageInvites:  admin,
		CanAccessSettings: appAdmin,
		CanManageUsers:    appAdmin,
		CanToggleAdmin:    appAdmin,
		CanManageCaches:   appAdmin,
	}
}

// AtLeast reports whether role ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return rank(r) >= rank(min)
}

func rank(r Role) int {
	switch r {
	case RoleMember:
		return 1
	case RoleAdmin:
		return 2
	case RoleAppAdmin:
		return 3
	default:
		return 0
	}
}
