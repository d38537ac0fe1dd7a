package persistence

import "time"

// User represents a Plex-linked or local account.
type User struct {
	ID           string
	PlexID       *string
	Username     string
	DisplayName  string
	Email        *string
	AvatarURL    *string
	PasswordHash *string
	IsAdmin      bool
	IsAppAdmin   bool
	IsLocal      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID            string
	UserID        string
	Token         string
	IsLocalInvite bool
	// MovieNightID scopes invite sessions to a single night.
	MovieNightID *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// Group is a set of users that share movie nights.
type Group struct {
	ID              string
	Name            string
	Description     *string
	MaxVotesPerUser int
	SharingEnabled  bool
	InvitePIN       *string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Membership roles stored on group_members.
const (
	MemberRoleMember = "member"
	MemberRoleAdmin  = "admin"
)

// GroupMember links a user to a group. Username, DisplayName and AvatarURL
// are read-only projections of the user row.
type GroupMember struct {
	GroupID     string
	UserID      string
	Role        string
	JoinedAt    time.Time
	Username    string
	DisplayName string
	AvatarURL   *string
}

// Schedule generates recurring movie nights for a group.
type Schedule struct {
	ID            string
	GroupID       string
	Name          string
	DayOfWeek     int
	Time          string
	Recurrence    string
	GenerateCount int
	HostID        *string
	// StartsOn is the first occurrence date; it anchors biweekly and monthly cadence.
	StartsOn  string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Movie night statuses.
const (
	NightStatusVoting  = "voting"
	NightStatusDecided = "decided"
)

// MovieNight is a single dated event.
type MovieNight struct {
	ID                  string
	GroupID             string
	ScheduleID          *string
	Date                string
	Time                string
	Status              string
	IsCancelled         bool
	CancelReason        *string
	WinningNominationID *string
	HostID              *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MovieNightFilter narrows movie night listings.
type MovieNightFilter struct {
	// FromDate, when set, drops nights dated before it (YYYY-MM-DD).
	FromDate string
}

// Nomination is a movie proposed for a night. Exactly one of PlexRatingKey
// and TMDBID is set.
type Nomination struct {
	ID             string
	MovieNightID   string
	NominatedBy    string
	PlexRatingKey  *string
	TMDBID         *int64
	Title          string
	Year           *int
	PosterURL      *string
	Overview       *string
	RuntimeMinutes *int
	CreatedAt      time.Time
}

// Vote is one user's stake in one nomination.
type Vote struct {
	NominationID string
	UserID       string
	MovieNightID string
	VoteCount    int
	HasWatched   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NominationBlock is a user's watched-it veto on a nomination.
type NominationBlock struct {
	NominationID string
	UserID       string
	CreatedAt    time.Time
}

// Attendance statuses.
const (
	AttendancePending   = "pending"
	AttendanceAttending = "attending"
	AttendanceAbsent    = "absent"
)

// Attendance records whether a user plans to attend a night.
type Attendance struct {
	MovieNightID string
	UserID       string
	Status       string
	UpdatedAt    time.Time
}

// GuestInvite grants guest access to a single movie night.
type GuestInvite struct {
	ID           string
	Token        string
	MovieNightID string
	CreatedBy    string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}
