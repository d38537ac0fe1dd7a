package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/movienight/internal/access"
)

func newGroupServiceForTest(store *memStore) *GroupService {
	return NewGroupService(store, store, sequence("group"), newTestClock().Now)
}

func TestGroupService_CreateGroup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	svc := newGroupServiceForTest(store)
	alice := Principal{UserID: "alice"}

	t.Run("creator becomes admin and cap defaults", func(t *testing.T) {
		group, err := svc.CreateGroup(ctx, alice, GroupInput{Name: "  Friday Crew  "})
		if err != nil {
			t.Fatalf("expected create to succeed, got %v", err)
		}
		if group.Name != "Friday Crew" {
			t.Fatalf("expected trimmed name, got %q", group.Name)
		}
		if group.MaxVotesPerUser != DefaultMaxVotesPerUser {
			t.Fatalf("expected default cap %d, got %d", DefaultMaxVotesPerUser, group.MaxVotesPerUser)
		}
		if group.Role != access.RoleAdmin {
			t.Fatalf("expected creator to be admin, got %s", group.Role)
		}
		member, err := store.GetMember(ctx, group.ID, "alice")
		if err != nil || member.Role != "admin" {
			t.Fatalf("expected admin membership, got %+v (%v)", member, err)
		}
	})

	t.Run("missing name is a field error", func(t *testing.T) {
		_, err := svc.CreateGroup(ctx, alice, GroupInput{Name: " "})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["name"] == "" {
			t.Fatalf("expected name validation error, got %v", err)
		}
	})

	t.Run("malformed pin is a field error", func(t *testing.T) {
		pin := "12ab"
		_, err := svc.CreateGroup(ctx, alice, GroupInput{Name: "PIN", InvitePIN: &pin})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["invitePin"] == "" {
			t.Fatalf("expected invite_pin validation error, got %v", err)
		}
	})

	t.Run("invite sessions cannot create groups", func(t *testing.T) {
		_, err := svc.CreateGroup(ctx, Principal{UserID: "guest", IsLocalInvite: true}, GroupInput{Name: "Nope"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestGroupService_MembershipGate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addUser("carol", "Carol")
	store.addGroup("g1", 3, "alice", "bob")
	svc := newGroupServiceForTest(store)

	if _, err := svc.GetGroup(ctx, Principal{UserID: "carol"}, "g1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected non-member to be refused, got %v", err)
	}
	if _, err := svc.GetGroup(ctx, Principal{}, "g1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected anonymous caller to be unauthenticated, got %v", err)
	}
	if _, err := svc.GetGroup(ctx, Principal{UserID: "bob"}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	group, err := svc.GetGroup(ctx, Principal{UserID: "bob"}, "g1")
	if err != nil {
		t.Fatalf("expected member to read group, got %v", err)
	}
	if group.Role != access.RoleMember || len(group.Members) != 2 {
		t.Fatalf("expected member role and two members, got %s and %d", group.Role, len(group.Members))
	}

	appAdmin, err := svc.GetGroup(ctx, Principal{UserID: "carol", IsAppAdmin: true}, "g1")
	if err != nil || appAdmin.Role != access.RoleAppAdmin {
		t.Fatalf("expected app admin to read any group, got %s (%v)", appAdmin.Role, err)
	}
}

func TestGroupService_ListGroups(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addGroup("g1", 3, "alice", "bob")
	store.addGroup("g2", 3, "alice")
	svc := newGroupServiceForTest(store)

	mine, err := svc.ListGroups(ctx, Principal{UserID: "bob"})
	if err != nil || len(mine) != 1 || mine[0].ID != "g1" {
		t.Fatalf("expected bob to see only g1, got %+v (%v)", mine, err)
	}

	all, err := svc.ListGroups(ctx, Principal{UserID: "bob", IsAdmin: true})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected admin to see every group, got %d (%v)", len(all), err)
	}
}

func TestGroupService_UpdateGroup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addGroup("g1", 3, "alice", "bob")
	svc := newGroupServiceForTest(store)

	if _, err := svc.UpdateGroup(ctx, Principal{UserID: "bob"}, "g1", GroupInput{Name: "Renamed"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected member update to be refused, got %v", err)
	}

	pin := "123456"
	group, err := svc.UpdateGroup(ctx, Principal{UserID: "alice"}, "g1", GroupInput{Name: "Renamed", MaxVotesPerUser: 5, SharingEnabled: true, InvitePIN: &pin})
	if err != nil {
		t.Fatalf("expected admin update to succeed, got %v", err)
	}
	if group.MaxVotesPerUser != 5 || !group.SharingEnabled || group.InvitePIN != pin || !group.HasInvitePIN {
		t.Fatalf("expected updated fields, got %+v", group)
	}

	// Omitting the PIN keeps it; an empty one clears it.
	group, err = svc.UpdateGroup(ctx, Principal{UserID: "alice"}, "g1", GroupInput{Name: "Renamed", SharingEnabled: true})
	if err != nil || !group.HasInvitePIN {
		t.Fatalf("expected pin to be kept, got %+v (%v)", group, err)
	}
	empty := ""
	group, err = svc.UpdateGroup(ctx, Principal{UserID: "alice"}, "g1", GroupInput{Name: "Renamed", InvitePIN: &empty})
	if err != nil || group.HasInvitePIN {
		t.Fatalf("expected pin to be cleared, got %+v (%v)", group, err)
	}

	member, err := svc.GetGroup(ctx, Principal{UserID: "bob"}, "g1")
	if err != nil {
		t.Fatalf("expected member read, got %v", err)
	}
	if member.InvitePIN != "" {
		t.Fatalf("expected pin to be hidden from members")
	}
}

func TestGroupService_Members(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addUser("carol", "Carol")
	store.addGroup("g1", 3, "alice", "bob")
	svc := newGroupServiceForTest(store)
	alice := Principal{UserID: "alice"}

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.AddMember(ctx, alice, "g1", MemberInput{UserID: "nobody"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["userId"] == "" {
			t.Fatalf("expected user_id field error, got %v", err)
		}
	})

	t.Run("add defaults to member", func(t *testing.T) {
		member, err := svc.AddMember(ctx, alice, "g1", MemberInput{UserID: "carol"})
		if err != nil {
			t.Fatalf("expected add to succeed, got %v", err)
		}
		if member.Role != "member" || member.DisplayName != "Carol" {
			t.Fatalf("unexpected member %+v", member)
		}
	})

	t.Run("duplicate membership", func(t *testing.T) {
		if _, err := svc.AddMember(ctx, alice, "g1", MemberInput{UserID: "carol"}); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("members cannot manage others", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, Principal{UserID: "bob"}, "g1", "carol"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("promote and invalid role", func(t *testing.T) {
		if err := svc.UpdateMemberRole(ctx, alice, "g1", "bob", "owner"); err == nil {
			t.Fatalf("expected invalid role to fail")
		}
		if err := svc.UpdateMemberRole(ctx, alice, "g1", "bob", "admin"); err != nil {
			t.Fatalf("expected promotion to succeed, got %v", err)
		}
		group, err := svc.GetGroup(ctx, Principal{UserID: "bob"}, "g1")
		if err != nil || group.Role != access.RoleAdmin {
			t.Fatalf("expected bob to be admin, got %s (%v)", group.Role, err)
		}
	})

	t.Run("members can leave", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, Principal{UserID: "carol"}, "g1", "carol"); err != nil {
			t.Fatalf("expected self removal to succeed, got %v", err)
		}
		if _, err := svc.GetGroup(ctx, Principal{UserID: "carol"}, "g1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected former member to be refused, got %v", err)
		}
	})
}

func TestGroupService_DeleteGroup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser("alice", "Alice")
	store.addUser("bob", "Bob")
	store.addGroup("g1", 3, "alice", "bob")
	store.addNight("n1", "g1", "2024-03-08")
	svc := newGroupServiceForTest(store)

	if err := svc.DeleteGroup(ctx, Principal{UserID: "bob"}, "g1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected member delete to be refused, got %v", err)
	}
	if err := svc.DeleteGroup(ctx, Principal{UserID: "alice"}, "g1"); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := store.GetMovieNight(ctx, "n1"); err == nil {
		t.Fatalf("expected nights to be removed with the group")
	}
	if err := svc.DeleteGroup(ctx, Principal{UserID: "alice"}, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
