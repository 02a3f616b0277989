package chat

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewGroupRoom_CreatorIsOwner(t *testing.T) {
	alice := NewUser("alice", PresenceOffline)
	g := NewGroupRoom(1, "Study", alice)

	if g.Owner() != "alice" {
		t.Fatalf("expected owner alice, got %s", g.Owner())
	}
	role, ok := g.Role("alice")
	if !ok || role != RoleOwner {
		t.Fatalf("expected alice to be OWNER, got %v (present=%v)", role, ok)
	}
	if got := len(g.Participants()); got != 1 {
		t.Fatalf("expected 1 participant, got %d", got)
	}
	if got := g.EmptySlots(); got != GroupCapacity-1 {
		t.Fatalf("expected %d empty slots, got %d", GroupCapacity-1, got)
	}
}

func TestGroupRoom_RolesMatchParticipants(t *testing.T) {
	alice := NewUser("alice", PresenceOffline)
	g := NewGroupRoom(1, "Study", alice)

	for _, name := range []string{"bob", "carol", "dave"} {
		if err := g.AddParticipant(NewUser(name, PresenceOffline)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if err := g.RemoveParticipant("carol"); err != nil {
		t.Fatalf("remove carol: %v", err)
	}

	// The roster and the participant set must always agree, with exactly
	// one OWNER entry.
	roles := g.Roles()
	participants := g.Participants()
	if len(roles) != len(participants) {
		t.Fatalf("roster size %d != participant count %d", len(roles), len(participants))
	}
	owners := 0
	for _, u := range participants {
		role, ok := roles[u.Username]
		if !ok {
			t.Fatalf("participant %s missing from roster", u.Username)
		}
		if role == RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Fatalf("expected exactly one OWNER, got %d", owners)
	}
	if g.EmptySlots()+len(participants) != GroupCapacity {
		t.Fatalf("emptySlots + participants = %d, want %d", g.EmptySlots()+len(participants), GroupCapacity)
	}
}

func TestGroupRoom_CapacityEnforced(t *testing.T) {
	g := NewGroupRoom(1, "Big", NewUser("owner", PresenceOffline))

	for i := 1; i < GroupCapacity; i++ {
		if err := g.AddParticipant(NewUser(fmt.Sprintf("user%02d", i), PresenceOffline)); err != nil {
			t.Fatalf("add user%02d: %v", i, err)
		}
	}
	if got := g.EmptySlots(); got != 0 {
		t.Fatalf("expected 0 empty slots, got %d", got)
	}

	err := g.AddParticipant(NewUser("overflow", PresenceOffline))
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestGroupRoom_AddDuplicate(t *testing.T) {
	bob := NewUser("bob", PresenceOffline)
	g := NewGroupRoom(1, "Study", NewUser("alice", PresenceOffline))

	if err := g.AddParticipant(bob); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := g.AddParticipant(bob); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGroupRoom_OwnerCannotBeRemoved(t *testing.T) {
	g := NewGroupRoom(1, "Study", NewUser("alice", PresenceOffline))

	if err := g.RemoveParticipant("alice"); !errors.Is(err, ErrCannotRemoveOwner) {
		t.Fatalf("expected ErrCannotRemoveOwner, got %v", err)
	}
}

func TestGroupRoom_SetRole(t *testing.T) {
	g := NewGroupRoom(1, "Study", NewUser("alice", PresenceOffline))
	if err := g.AddParticipant(NewUser("bob", PresenceOffline)); err != nil {
		t.Fatal(err)
	}

	if err := g.SetRole("bob", RoleAdmin); err != nil {
		t.Fatalf("promote bob: %v", err)
	}
	if role, _ := g.Role("bob"); role != RoleAdmin {
		t.Fatalf("expected bob ADMIN, got %s", role)
	}

	// OWNER is not assignable and the owner's role is fixed.
	if err := g.SetRole("bob", RoleOwner); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument assigning OWNER, got %v", err)
	}
	if err := g.SetRole("alice", RoleMember); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument demoting owner, got %v", err)
	}
	if err := g.SetRole("ghost", RoleAdmin); !errors.Is(err, ErrTargetNotParticipant) {
		t.Fatalf("expected ErrTargetNotParticipant, got %v", err)
	}
}

func TestRestoreGroup_Validation(t *testing.T) {
	alice := NewUser("alice", PresenceOffline)
	bob := NewUser("bob", PresenceOffline)

	tests := []struct {
		name    string
		members map[*User]Role
		wantErr error
	}{
		{
			name:    "valid",
			members: map[*User]Role{alice: RoleOwner, bob: RoleMember},
		},
		{
			name:    "no owner",
			members: map[*User]Role{alice: RoleAdmin, bob: RoleMember},
			wantErr: ErrCorruptState,
		},
		{
			name:    "two owners",
			members: map[*User]Role{alice: RoleOwner, bob: RoleOwner},
			wantErr: ErrCorruptState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := RestoreGroup(7, "Study", tt.members)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.Owner() != "alice" {
				t.Fatalf("expected owner alice, got %s", g.Owner())
			}
		})
	}
}
