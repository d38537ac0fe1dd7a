package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByPlexID(ctx context.Context, plexID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// GroupRepository stores groups and their memberships.
type GroupRepository interface {
	// CreateGroup inserts the group and its creator's membership atomically.
	CreateGroup(ctx context.Context, group Group, owner GroupMember) error
	UpdateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, id string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)
	// DeleteGroup removes the group and everything beneath it in one transaction.
	DeleteGroup(ctx context.Context, id string) error

	AddMember(ctx context.Context, member GroupMember) error
	UpdateMemberRole(ctx context.Context, groupID, userID, role string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	GetMember(ctx context.Context, groupID, userID string) (GroupMember, error)
	ListMembers(ctx context.Context, groupID string) ([]GroupMember, error)
}

// ScheduleRepository stores recurring schedules.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context, groupID string) ([]Schedule, error)
	ListAllSchedules(ctx context.Context) ([]Schedule, error)
	// DeleteSchedule removes the schedule, deletes its undecided nights dated
	// on or after today and detaches the rest.
	DeleteSchedule(ctx context.Context, id, today string) error
}

// MovieNightRepository stores movie nights and attendance.
type MovieNightRepository interface {
	CreateMovieNight(ctx context.Context, night MovieNight) error
	// CreateMovieNights inserts generated nights, skipping any whose
	// (schedule, date) already exists, and returns how many were added.
	CreateMovieNights(ctx context.Context, nights []MovieNight) (int, error)
	UpdateMovieNight(ctx context.Context, night MovieNight) error
	GetMovieNight(ctx context.Context, id string) (MovieNight, error)
	ListMovieNights(ctx context.Context, groupID string, filter MovieNightFilter) ([]MovieNight, error)
	CountUpcomingForSchedule(ctx context.Context, scheduleID, fromDate string) (int, error)

	UpsertAttendance(ctx context.Context, attendance Attendance) error
	ListAttendance(ctx context.Context, movieNightID string) ([]Attendance, error)
}

// NominationRepository stores nominations with their votes and blocks.
type NominationRepository interface {
	CreateNomination(ctx context.Context, nomination Nomination) error
	GetNomination(ctx context.Context, id string) (Nomination, error)
	ListNominations(ctx context.Context, movieNightID string) ([]Nomination, error)
	DeleteNomination(ctx context.Context, id string) error

	// IncrementVote adds one vote unless the user's total for the night has
	// reached maxVotes (ErrLimitReached) or the nomination is blocked (ErrBlocked).
	IncrementVote(ctx context.Context, vote Vote, maxVotes int) (Vote, error)
	// DecrementVote removes one vote, deleting the row at zero. It returns
	// ErrNotFound when the user has no vote on the nomination.
	DecrementVote(ctx context.Context, nominationID, userID string, at time.Time) (int, error)
	ListVotes(ctx context.Context, movieNightID string) ([]Vote, error)
	CountUserVotes(ctx context.Context, movieNightID, userID string) (int, error)

	// BlockNomination records the block and deletes every vote on the nomination.
	BlockNomination(ctx context.Context, block NominationBlock) error
	UnblockNomination(ctx context.Context, nominationID, userID string) error
	ListBlocks(ctx context.Context, movieNightID string) ([]NominationBlock, error)
}

// InviteRepository stores guest invites.
type InviteRepository interface {
	CreateInvite(ctx context.Context, invite GuestInvite) error
	GetInvite(ctx context.Context, id string) (GuestInvite, error)
	GetInviteByToken(ctx context.Context, token string) (GuestInvite, error)
	ListInvites(ctx context.Context, movieNightID string) ([]GuestInvite, error)
	DeleteInvite(ctx context.Context, id string) error
}

// SettingsRepository stores application settings as key/value pairs.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	ListSettings(ctx context.Context) (map[string]string, error)
	SetSettings(ctx context.Context, values map[string]string, updatedAt time.Time) error
}
