package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/movienight/internal/persistence"
	"github.com/example/movienight/internal/persistence/sqlite/migration"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	config := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "test.db"))
	pool, err := Open(context.Background(), config, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func seedUser(t *testing.T, pool *ConnectionPool, id, username string) persistence.User {
	t.Helper()
	user := persistence.User{
		ID:          id,
		Username:    username,
		DisplayName: username,
		CreatedAt:   testEpoch,
		UpdatedAt:   testEpoch,
	}
	if err := NewUserRepository(pool).CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

func seedGroup(t *testing.T, pool *ConnectionPool, id, ownerID string, maxVotes int) persistence.Group {
	t.Helper()
	group := persistence.Group{
		ID:              id,
		Name:            "Group " + id,
		MaxVotesPerUser: maxVotes,
		CreatedBy:       ownerID,
		CreatedAt:       testEpoch,
		UpdatedAt:       testEpoch,
	}
	owner := persistence.GroupMember{UserID: ownerID, Role: persistence.MemberRoleAdmin, JoinedAt: testEpoch}
	if err := NewGroupRepository(pool).CreateGroup(context.Background(), group, owner); err != nil {
		t.Fatalf("failed to seed group %s: %v", id, err)
	}
	return group
}

func seedNight(t *testing.T, pool *ConnectionPool, id, groupID, date string) persistence.MovieNight {
	t.Helper()
	night := persistence.MovieNight{
		ID:        id,
		GroupID:   groupID,
		Date:      date,
		Time:      "19:00",
		Status:    persistence.NightStatusVoting,
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
	if err := NewMovieNightRepository(pool).CreateMovieNight(context.Background(), night); err != nil {
		t.Fatalf("failed to seed night %s: %v", id, err)
	}
	return night
}

func seedNomination(t *testing.T, pool *ConnectionPool, id, nightID, userID string, tmdbID int64, createdAt time.Time) persistence.Nomination {
	t.Helper()
	nomination := persistence.Nomination{
		ID:           id,
		MovieNightID: nightID,
		NominatedBy:  userID,
		TMDBID:       &tmdbID,
		Title:        "Movie " + id,
		CreatedAt:    createdAt,
	}
	if err := NewNominationRepository(pool).CreateNomination(context.Background(), nomination); err != nil {
		t.Fatalf("failed to seed nomination %s: %v", id, err)
	}
	return nomination
}

func strPtr(s string) *string { return &s }
