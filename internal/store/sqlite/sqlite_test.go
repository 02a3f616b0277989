package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termchat/termchat-server/internal/chat"
	"github.com/termchat/termchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "alice", chat.PresenceOffline); err != nil {
		t.Fatalf("create user: %v", err)
	}

	u, err := s.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u.Username != "alice" || u.Presence() != chat.PresenceOffline {
		t.Fatalf("unexpected user %v", u)
	}

	if err := s.UpdateUserPresence(ctx, "alice", chat.PresenceOnline); err != nil {
		t.Fatalf("update presence: %v", err)
	}
	u, err = s.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.Presence() != chat.PresenceOnline {
		t.Fatalf("expected ONLINE, got %s", u.Presence())
	}

	if _, err := s.FindUserByUsername(ctx, "ghost"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateUserPresence(ctx, "ghost", chat.PresenceOnline); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		if err := s.CreateUser(ctx, name, chat.PresenceOffline); err != nil {
			t.Fatal(err)
		}
	}

	id, err := s.CreateRoom(ctx, "Study", chat.RoomTypeGroup, chat.GroupCapacity)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.AddParticipant(ctx, id, "alice", chat.RoleOwner); err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, id, "bob", chat.RoleMember); err != nil {
		t.Fatal(err)
	}

	rec, err := s.FindRoomByID(ctx, id)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if rec.Name != "Study" || rec.Type != chat.RoomTypeGroup || rec.Capacity != chat.GroupCapacity {
		t.Fatalf("unexpected room record %+v", rec)
	}
	if len(rec.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(rec.Participants))
	}
	// Participants come back ordered by username.
	if rec.Participants[0].Username != "alice" || rec.Participants[0].Role != chat.RoleOwner {
		t.Fatalf("unexpected first participant %+v", rec.Participants[0])
	}

	if err := s.UpdateParticipantRole(ctx, id, "bob", chat.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveParticipant(ctx, id, "bob"); err != nil {
		t.Fatal(err)
	}
	rec, err = s.FindRoomByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Participants) != 1 {
		t.Fatalf("expected 1 participant after removal, got %d", len(rec.Participants))
	}

	sums, err := s.RoomsWithMember(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].ID != id || sums[0].Name != "Study" {
		t.Fatalf("unexpected summaries %v", sums)
	}

	if _, err := s.FindRoomByID(ctx, 999); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomIDsAreMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.CreateRoom(ctx, "room", chat.RoomTypeGroup, chat.GroupCapacity)
		if err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestCorruptRoleRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRoom(ctx, "Study", chat.RoomTypeGroup, chat.GroupCapacity)
	if err != nil {
		t.Fatal(err)
	}
	// Write a role value no enum covers, bypassing the typed API.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_participants (room_id, username, role) VALUES (?, ?, ?)`,
		id, "alice", "SUPERUSER"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.FindRoomByID(ctx, id); !errors.Is(err, chat.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}

func TestDeleteRoomCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRoom(ctx, "Study", chat.RoomTypeGroup, chat.GroupCapacity)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, id, "alice", chat.RoleOwner); err != nil {
		t.Fatal(err)
	}
	msgID, err := s.CreateMessage(ctx, id, "alice", "Hi", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SeedDeliveryStatuses(ctx, msgID, map[string]chat.Status{"alice": chat.StatusSent}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("delete room: %v", err)
	}

	if _, err := s.FindRoomByID(ctx, id); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for room, got %v", err)
	}
	if _, err := s.FindMessageByID(ctx, msgID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for message, got %v", err)
	}
	msgs, err := s.ListMessagesByRoom(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	ids, err := s.ListRoomIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no rooms, got %v", ids)
	}

	if err := s.DeleteRoom(ctx, id); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx, "Study", chat.RoomTypeGroup, chat.GroupCapacity)
	if err != nil {
		t.Fatal(err)
	}

	sentAt := time.Now().UTC().Truncate(time.Second)
	id, err := s.CreateMessage(ctx, roomID, "alice", "Hi", sentAt)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	seed := map[string]chat.Status{
		"alice": chat.StatusSent,
		"bob":   chat.StatusReceived,
	}
	if err := s.SeedDeliveryStatuses(ctx, id, seed); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	rec, err := s.FindMessageByID(ctx, id)
	if err != nil {
		t.Fatalf("find message: %v", err)
	}
	if rec.Sender != "alice" || rec.Content != "Hi" || rec.RoomID != roomID {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Delivery["alice"] != chat.StatusSent || rec.Delivery["bob"] != chat.StatusReceived {
		t.Fatalf("unexpected delivery map %v", rec.Delivery)
	}

	if err := s.SetDeliveryStatus(ctx, id, "bob", chat.StatusRead); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateMessageContent(ctx, id, chat.DeletedContent); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.ListMessagesByRoom(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != chat.DeletedContent {
		t.Fatalf("expected deleted marker, got %q", msgs[0].Content)
	}
	if msgs[0].Delivery["bob"] != chat.StatusRead {
		t.Fatalf("expected bob READ, got %s", msgs[0].Delivery["bob"])
	}

	if err := s.UpdateMessageContent(ctx, 999, "x"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "alice", chat.PresenceOffline); err != nil {
		t.Fatal(err)
	}

	loginAt := time.Now().UTC().Truncate(time.Second)
	id, err := s.CreateSession(ctx, &store.SessionRecord{
		Username:  "alice",
		Token:     "tok-1",
		IPAddress: "10.0.0.1",
		LoginAt:   loginAt,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	active, err := s.ListActiveSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := active["alice"]
	if !ok {
		t.Fatal("expected active session for alice")
	}
	if rec.ID != id || rec.LogoutAt != nil {
		t.Fatalf("unexpected active record %+v", rec)
	}

	if err := s.EndActiveSession(ctx, "alice", loginAt.Add(time.Minute)); err != nil {
		t.Fatalf("end session: %v", err)
	}
	active, err = s.ListActiveSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}

	inactive, err := s.ListInactiveSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	closed := inactive["alice"]
	if len(closed) != 1 || closed[0].LogoutAt == nil {
		t.Fatalf("unexpected inactive sessions %+v", closed)
	}

	// Closing again fails: the transition is one-way and happens once.
	if err := s.EndActiveSession(ctx, "alice", time.Now()); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
