package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/persistence/sqlite"
	"github.com/example/movienight/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated database in a temp dir with every repository
// opened on it. It is closed by tb.Cleanup.
type SQLiteHarness struct {
	Pool        *sqlite.ConnectionPool
	Users       *sqlite.UserRepository
	Sessions    *sqlite.SessionRepository
	Groups      *sqlite.GroupRepository
	Schedules   *sqlite.ScheduleRepository
	Nights      *sqlite.MovieNightRepository
	Nominations *sqlite.NominationRepository
	Invites     *sqlite.InviteRepository
	Settings    *sqlite.SettingsRepository
}

func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	config := migration.TempFileTestSQLiteConfig(filepath.Join(tb.TempDir(), "movienight.db"))
	pool, err := sqlite.Open(context.Background(), config, nil)
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { _ = pool.Close() })

	return &SQLiteHarness{
		Pool:        pool,
		Users:       sqlite.NewUserRepository(pool),
		Sessions:    sqlite.NewSessionRepository(pool),
		Groups:      sqlite.NewGroupRepository(pool),
		Schedules:   sqlite.NewScheduleRepository(pool),
		Nights:      sqlite.NewMovieNightRepository(pool),
		Nominations: sqlite.NewNominationRepository(pool),
		Invites:     sqlite.NewInviteRepository(pool),
		Settings:    sqlite.NewSettingsRepository(pool),
	}
}

// SeedUser inserts a local user whose username is its id.
func (h *SQLiteHarness) SeedUser(tb testing.TB, id, displayName string) persistence.User {
	tb.Helper()
	user := persistence.User{
		ID:          id,
		Username:    id,
		DisplayName: displayName,
		IsLocal:     true,
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	if err := h.Users.CreateUser(context.Background(), user); err != nil {
		tb.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

// SeedGroup creates a group owned by members[0], who becomes its admin. The
// other members join with the member role.
func (h *SQLiteHarness) SeedGroup(tb testing.TB, id string, maxVotes int, members ...string) persistence.Group {
	tb.Helper()
	if len(members) == 0 {
		tb.Fatalf("group %s needs an owner", id)
	}
	ctx := context.Background()
	group := persistence.Group{
		ID:              id,
		Name:            "Group " + id,
		MaxVotesPerUser: maxVotes,
		CreatedBy:       members[0],
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	owner := persistence.GroupMember{GroupID: id, UserID: members[0], Role: persistence.MemberRoleAdmin, JoinedAt: referenceTime}
	if err := h.Groups.CreateGroup(ctx, group, owner); err != nil {
		tb.Fatalf("failed to seed group %s: %v", id, err)
	}
	for _, userID := range members[1:] {
		member := persistence.GroupMember{GroupID: id, UserID: userID, Role: persistence.MemberRoleMember, JoinedAt: referenceTime}
		if err := h.Groups.AddMember(ctx, member); err != nil {
			tb.Fatalf("failed to add %s to group %s: %v", userID, id, err)
		}
	}
	return group
}

// SeedNight inserts an ad-hoc voting night at 19:30 on date.
func (h *SQLiteHarness) SeedNight(tb testing.TB, id, groupID, date string) persistence.MovieNight {
	tb.Helper()
	night := persistence.MovieNight{
		ID:        id,
		GroupID:   groupID,
		Date:      date,
		Time:      "19:30",
		Status:    persistence.NightStatusVoting,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	if err := h.Nights.CreateMovieNight(context.Background(), night); err != nil {
		tb.Fatalf("failed to seed night %s: %v", id, err)
	}
	return night
}
