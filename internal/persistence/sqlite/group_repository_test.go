package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/movienight/internal/persistence"
)

func TestGroupRepository_Membership(t *testing.T) {
	pool := openTestPool(t)
	repo := NewGroupRepository(pool)
	ctx := context.Background()
	seedUser(t, pool, "alice", "alice")
	seedUser(t, pool, "bob", "bob")
	seedGroup(t, pool, "g1", "alice", 3)

	owner, err := repo.GetMember(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if owner.Role != persistence.MemberRoleAdmin || owner.Username != "alice" {
		t.Fatalf("expected admin owner alice, got %+v", owner)
	}

	member := persistence.GroupMember{GroupID: "g1", UserID: "bob", Role: persistence.MemberRoleMember, JoinedAt: testEpoch}
	if err := repo.AddMember(ctx, member); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := repo.AddMember(ctx, member); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := repo.UpdateMemberRole(ctx, "g1", "bob", persistence.MemberRoleAdmin); err != nil {
		t.Fatalf("UpdateMemberRole failed: %v", err)
	}
	if err := repo.UpdateMemberRole(ctx, "g1", "bob", "owner"); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unknown role, got %v", err)
	}

	members, err := repo.ListMembers(ctx, "g1")
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 members, got %+v (%v)", members, err)
	}

	groups, err := repo.ListGroupsForUser(ctx, "bob")
	if err != nil || len(groups) != 1 || groups[0].ID != "g1" {
		t.Fatalf("expected bob in g1, got %+v (%v)", groups, err)
	}

	if err := repo.RemoveMember(ctx, "g1", "bob"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if _, err := repo.GetMember(ctx, "g1", "bob"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupRepository_UpdateValidatesPIN(t *testing.T) {
	pool := openTestPool(t)
	repo := NewGroupRepository(pool)
	ctx := context.Background()
	seedUser(t, pool, "alice", "alice")
	group := seedGroup(t, pool, "g1", "alice", 3)

	group.SharingEnabled = true
	group.InvitePIN = strPtr("123456")
	group.UpdatedAt = testEpoch.Add(time.Hour)
	if err := repo.UpdateGroup(ctx, group); err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	got, err := repo.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if !got.SharingEnabled || got.InvitePIN == nil || *got.InvitePIN != "123456" {
		t.Fatalf("expected sharing with pin, got %+v", got)
	}

	group.InvitePIN = strPtr("123")
	if err := repo.UpdateGroup(ctx, group); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for short pin, got %v", err)
	}
}

func TestGroupRepository_DeleteCascades(t *testing.T) {
	pool := openTestPool(t)
	groups := NewGroupRepository(pool)
	nights := NewMovieNightRepository(pool)
	sessions := NewSessionRepository(pool)
	invites := NewInviteRepository(pool)
	ctx := context.Background()

	seedUser(t, pool, "alice", "alice")
	seedUser(t, pool, "guest", "guest")
	seedGroup(t, pool, "g1", "alice", 3)
	seedNight(t, pool, "n1", "g1", "2024-03-08")
	seedNomination(t, pool, "nomA", "n1", "alice", 100, testEpoch)

	if err := invites.CreateInvite(ctx, persistence.GuestInvite{ID: "i1", Token: "tok", MovieNightID: "n1", CreatedBy: "alice", CreatedAt: testEpoch}); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}
	guestSession := persistence.Session{
		ID: "s1", UserID: "guest", Token: "guest-token", IsLocalInvite: true, MovieNightID: strPtr("n1"),
		ExpiresAt: testEpoch.Add(time.Hour), CreatedAt: testEpoch,
	}
	if _, err := sessions.CreateSession(ctx, guestSession); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := groups.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	if _, err := nights.GetMovieNight(ctx, "n1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected night removed, got %v", err)
	}
	if _, err := NewNominationRepository(pool).GetNomination(ctx, "nomA"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected nomination removed, got %v", err)
	}
	if _, err := invites.GetInviteByToken(ctx, "tok"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected invite removed, got %v", err)
	}
	if _, err := sessions.GetSession(ctx, "guest-token"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected invite session removed, got %v", err)
	}
	if err := groups.DeleteGroup(ctx, "g1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
