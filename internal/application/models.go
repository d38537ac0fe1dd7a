package application

import (
	"context"
	"time"

	"github.com/example/movienight/internal/access"
)

// Principal represents the authenticated caller invoking a service method.
// Role flags are loaded from the users table when the session is validated.
type Principal struct {
	UserID        string
	PlexID        string
	IsAdmin       bool
	IsAppAdmin    bool
	IsLocalInvite bool
	// MovieNightID is the only night an invite session may read.
	MovieNightID string
}

// Authenticated reports whether the principal carries a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func (p Principal) accessSession() access.Session {
	return access.Session{
		UserID:        p.UserID,
		IsAdmin:       p.IsAdmin,
		IsAppAdmin:    p.IsAppAdmin,
		IsLocalInvite: p.IsLocalInvite,
	}
}

// User is the public view of an account.
type User struct {
	ID          string
	PlexID      string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
	IsAdmin     bool
	IsAppAdmin  bool
	IsLocal     bool
	HasPassword bool
	CreatedAt   time.Time
}

// Session is an issued login.
type Session struct {
	ID            string
	UserID        string
	Token         string
	IsLocalInvite bool
	MovieNightID  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Group is a group with the caller's role and capabilities in it.
type Group struct {
	ID              string
	Name            string
	Description     string
	MaxVotesPerUser int
	SharingEnabled  bool
	HasInvitePIN    bool
	// InvitePIN is only filled for callers who manage invites.
	InvitePIN    string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Role         access.Role
	Capabilities access.Capabilities
	Members      []GroupMember
}

// GroupMember is a member row joined with the user's display fields.
type GroupMember struct {
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	Role        string
	JoinedAt    time.Time
}

// Schedule generates recurring movie nights.
type Schedule struct {
	ID            string
	GroupID       string
	Name          string
	DayOfWeek     int
	Time          string
	Recurrence    string
	GenerateCount int
	HostID        string
	StartsOn      string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MovieNight is the summary view of a night.
type MovieNight struct {
	ID                  string
	GroupID             string
	ScheduleID          string
	Date                string
	Time                string
	Status              string
	IsCancelled         bool
	CancelReason        string
	WinningNominationID string
	HostID              string
	IsArchived          bool
	IsLocked            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MovieNightDetail is the enriched single-night view.
type MovieNightDetail struct {
	MovieNight
	GroupName      string
	HostName       string
	Nominations    []Nomination
	Attendance     []AttendanceEntry
	Role           access.Role
	Capabilities   access.Capabilities
	MaxVotes       int
	VotesUsed      int
	VotesRemaining int
	MyAttendance   string
}

// Nomination is a nomination enriched with tally and caller state.
type Nomination struct {
	ID             string
	MovieNightID   string
	PlexRatingKey  string
	TMDBID         int64
	Title          string
	Year           int
	PosterURL      string
	Overview       string
	RuntimeMinutes int
	NominatedBy    string
	NominatorName  string
	CreatedAt      time.Time
	Votes          int
	MyVotes        int
	Voters         []Voter
	IsBlocked      bool
	BlockedByMe    bool
	IsWinner       bool
	IsLeading      bool
}

// Voter is one user's displayed contribution to a nomination.
type Voter struct {
	UserID      string
	DisplayName string
	Count       int
	HasWatched  bool
}

// AttendanceEntry is one member's attendance for a night.
type AttendanceEntry struct {
	UserID      string
	DisplayName string
	Status      string
}

// VoteResult reports the caller's state after a vote change.
type VoteResult struct {
	NominationID   string
	VoteCount      int
	VotesUsed      int
	VotesRemaining int
	HasWatched     bool
}

// Invite is a guest invite link.
type Invite struct {
	ID           string
	Token        string
	MovieNightID string
	CreatedBy    string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	Expired      bool
}

// InviteSummary is what an invite link reveals before joining.
type InviteSummary struct {
	RequiresPIN     bool
	MovieNightID    string
	GroupName       string
	Date            string
	Time            string
	Status          string
	NominationCount int
}

// JoinResult is the outcome of redeeming an invite.
type JoinResult struct {
	User    User
	Session Session
	// Cookie is the signed value carried by the session cookie.
	Cookie  string
	Summary InviteSummary
}

// SettingValue is a setting as shown to operators.
type SettingValue struct {
	Key    string
	Value  string
	IsSet  bool
	Secret bool
}

// SearchResult is a movie candidate for nomination.
type SearchResult struct {
	Source        string
	PlexRatingKey string
	TMDBID        int64
	Title         string
	Year          int
	PosterURL     string
	Overview      string
	InLibrary     bool
}

// AppCapabilities are the capabilities a principal holds outside any group.
func AppCapabilities(p Principal) (access.Role, access.Capabilities) {
	role := access.Resolve(context.Background(), p.accessSession(), access.Scope{}, nil)
	return role, access.CapabilitiesFor(role)
}
