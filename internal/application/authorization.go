package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/movienight/internal/access"
	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/recurrence"
)

// membershipLookup adapts the group repository to the role resolver.
type membershipLookup struct {
	groups persistence.GroupRepository
}

func (m membershipLookup) MembershipRole(ctx context.Context, groupID, userID string) (string, bool, error) {
	member, err := m.groups.GetMember(ctx, groupID, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return member.Role, true, nil
}

// authorizer resolves roles and applies the membership gate shared by every
// group-scoped service.
type authorizer struct {
	groups persistence.GroupRepository
}

// groupRole resolves the caller's role for a group. Callers who are neither
// members nor global admins are refused.
func (a authorizer) groupRole(ctx context.Context, p Principal, groupID, hostID string) (access.Role, error) {
	if !p.Authenticated() {
		return access.RoleGuest, ErrUnauthenticated
	}
	if p.IsLocalInvite {
		return access.RoleGuest, ErrUnauthorized
	}
	if !p.IsAppAdmin && !p.IsAdmin {
		_, err := a.groups.GetMember(ctx, groupID, p.UserID)
		if errors.Is(err, persistence.ErrNotFound) {
			return access.RoleGuest, ErrUnauthorized
		}
		if err != nil {
			return access.RoleGuest, err
		}
	}
	scope := access.Scope{GroupID: groupID, HostID: hostID}
	return access.Resolve(ctx, p.accessSession(), scope, membershipLookup{groups: a.groups}), nil
}

// nightRole resolves the caller's role for a movie night. Invite sessions
// see only their own night, as GUEST.
func (a authorizer) nightRole(ctx context.Context, p Principal, night persistence.MovieNight) (access.Role, error) {
	if p.Authenticated() && p.IsLocalInvite {
		if p.MovieNightID != night.ID {
			return access.RoleGuest, ErrUnauthorized
		}
		return access.RoleGuest, nil
	}
	return a.groupRole(ctx, p, night.GroupID, deref(night.HostID))
}

// requireApp checks an app-wide capability.
func requireApp(p Principal, allowed func(access.Capabilities) bool) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	_, caps := AppCapabilities(p)
	if !allowed(caps) {
		return ErrUnauthorized
	}
	return nil
}

func canAccessSettings(c access.Capabilities) bool { return c.CanAccessSettings }
func canManageUsers(c access.Capabilities) bool { return c.CanManageUsers }
func canToggleAdmin(c access.Capabilities) bool { return c.CanToggleAdmin }
func canManageCaches(c access.Capabilities) bool { return c.CanManageCaches }

// requireMember refuses anonymous and invite sessions.
func requireMember(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if p.IsLocalInvite {
		return ErrUnauthorized
	}
	return nil
}

// calendar answers "today" in the configured zone.
type calendar struct {
	loc *time.Location
	now func() time.Time
}

func newCalendar(loc *time.Location, now func() time.Time) calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return calendar{loc: loc, now: now}
}

func (c calendar) today() string {
	return c.now().In(c.loc).Format(recurrence.DateLayout)
}

// isArchived reports whether date lies strictly before today.
func (c calendar) isArchived(date string) bool {
	return date < c.today()
}

func (c calendar) isLocked(night persistence.MovieNight) bool {
	return night.IsCancelled || c.isArchived(night.Date)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func ptr[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func toUser(u persistence.User) User {
	return User{
		ID:          u.ID,
		PlexID:      deref(u.PlexID),
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       deref(u.Email),
		AvatarURL:   deref(u.AvatarURL),
		IsAdmin:     u.IsAdmin,
		IsAppAdmin:  u.IsAppAdmin,
		IsLocal:     u.IsLocal,
		HasPassword: u.PasswordHash != nil && *u.PasswordHash != "",
		CreatedAt:   u.CreatedAt,
	}
}

func toSession(s persistence.Session) Session {
	return Session{
		ID:            s.ID,
		UserID:        s.UserID,
		Token:         s.Token,
		IsLocalInvite: s.IsLocalInvite,
		MovieNightID:  deref(s.MovieNightID),
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}

func toGroupMember(m persistence.GroupMember) GroupMember {
	return GroupMember{
		UserID:      m.UserID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		AvatarURL:   deref(m.AvatarURL),
		Role:        m.Role,
		JoinedAt:    m.JoinedAt,
	}
}

func toSchedule(s persistence.Schedule) Schedule {
	return Schedule{
		ID:            s.ID,
		GroupID:       s.GroupID,
		Name:          s.Name,
		DayOfWeek:     s.DayOfWeek,
		Time:          s.Time,
		Recurrence:    s.Recurrence,
		GenerateCount: s.GenerateCount,
		HostID:        deref(s.HostID),
		StartsOn:      s.StartsOn,
		CreatedBy:     s.CreatedBy,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (c calendar) toMovieNight(n persistence.MovieNight) MovieNight {
	archived := c.isArchived(n.Date)
	return MovieNight{
		ID:                  n.ID,
		GroupID:             n.GroupID,
		ScheduleID:          deref(n.ScheduleID),
		Date:                n.Date,
		Time:                n.Time,
		Status:              n.Status,
		IsCancelled:         n.IsCancelled,
		CancelReason:        deref(n.CancelReason),
		WinningNominationID: deref(n.WinningNominationID),
		HostID:              deref(n.HostID),
		IsArchived:          archived,
		IsLocked:            archived || n.IsCancelled,
		CreatedAt:           n.CreatedAt,
		UpdatedAt:           n.UpdatedAt,
	}
}

func toInvite(i persistence.GuestInvite, now time.Time) Invite {
	return Invite{
		ID:           i.ID,
		Token:        i.Token,
		MovieNightID: i.MovieNightID,
		CreatedBy:    i.CreatedBy,
		ExpiresAt:    i.ExpiresAt,
		CreatedAt:    i.CreatedAt,
		Expired:      i.ExpiresAt != nil && !i.ExpiresAt.After(now),
	}
}
