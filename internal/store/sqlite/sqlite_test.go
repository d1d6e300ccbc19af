package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/duochat/duochat-server/internal/store"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()

	var handle *sql.DB
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		handle = db
		return nil
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, handle
}

func seedUser(t *testing.T, s *SQLiteStore, name, email string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func seedRoom(t *testing.T, s *SQLiteStore) *store.Room {
	t.Helper()

	r, err := s.CreateRoom(context.Background(), "test room", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func TestUserCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "Alice Kim", "alice@example.com")
	if u.Status != store.UserStatusOffline {
		t.Fatalf("expected new user offline, got %s", u.Status)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Fatalf("expected id %d, got %d", u.ID, byEmail.ID)
	}

	if _, err := s.CreateUser(ctx, "Other", "alice@example.com", "hash"); err == nil {
		t.Fatal("expected duplicate email to fail")
	}

	if err := s.UpdateUserStatus(ctx, u.ID, store.UserStatusOnline); err != nil {
		t.Fatalf("update status: %v", err)
	}
	u2, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u2.Status != store.UserStatusOnline {
		t.Fatalf("expected online, got %s", u2.Status)
	}

	if _, err := s.GetUserByID(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParticipantUpsertReusesRow(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "Alice Kim", "alice@example.com")
	r := seedRoom(t, s)

	first, activated, err := s.UpsertParticipant(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !activated {
		t.Fatal("first upsert must report activation")
	}
	if first.JoinedAt == nil || first.LeftAt != nil {
		t.Fatalf("expected active row, got %+v", first)
	}

	// Upserting an active membership changes nothing.
	again, activated, err := s.UpsertParticipant(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if activated {
		t.Fatal("upsert of an active membership must not report activation")
	}
	if again.ID != first.ID {
		t.Fatalf("expected same row %d, got %d", first.ID, again.ID)
	}
	if !again.JoinedAt.Equal(*first.JoinedAt) {
		t.Fatalf("joined_at must not change on active upsert: %v vs %v", again.JoinedAt, first.JoinedAt)
	}

	left, err := s.MarkLeft(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("mark left: %v", err)
	}
	if !left {
		t.Fatal("mark left must report the row was closed")
	}
	active, err := s.IsActiveParticipant(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("check active: %v", err)
	}
	if active {
		t.Fatal("expected inactive after mark left")
	}

	// Marking left twice is harmless and reports nothing happened.
	left, err = s.MarkLeft(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("second mark left: %v", err)
	}
	if left {
		t.Fatal("second mark left must not report a close")
	}

	// Rejoin reactivates the same row with a fresh joined_at.
	rejoined, activated, err := s.UpsertParticipant(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("rejoin upsert: %v", err)
	}
	if !activated {
		t.Fatal("rejoin must report activation")
	}
	if rejoined.ID != first.ID {
		t.Fatalf("rejoin must reuse row %d, got %d", first.ID, rejoined.ID)
	}
	if rejoined.LeftAt != nil {
		t.Fatal("expected left_at cleared on rejoin")
	}
	if !rejoined.JoinedAt.After(*first.JoinedAt) {
		t.Fatalf("expected refreshed joined_at, got %v (was %v)", rejoined.JoinedAt, first.JoinedAt)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chat_participants WHERE room_id = ? AND user_id = ?`, r.ID, u.ID).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one participant row, got %d", count)
	}
}

func TestFindRoomBetween(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice Kim", "alice@example.com")
	bob := seedUser(t, s, "Bob Lee", "bob@example.com")
	room := seedRoom(t, s)

	if _, err := s.FindRoomBetween(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before membership, got %v", err)
	}

	for _, uid := range []int64{alice.ID, bob.ID} {
		if _, _, err := s.UpsertParticipant(ctx, room.ID, uid); err != nil {
			t.Fatalf("upsert participant %d: %v", uid, err)
		}
	}

	found, err := s.FindRoomBetween(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if found.ID != room.ID {
		t.Fatalf("expected room %d, got %d", room.ID, found.ID)
	}

	// Order of the pair does not matter.
	found, err = s.FindRoomBetween(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("find room reversed: %v", err)
	}
	if found.ID != room.ID {
		t.Fatalf("expected room %d, got %d", room.ID, found.ID)
	}

	// A left participant makes the room ineligible for reuse.
	if _, err := s.MarkLeft(ctx, room.ID, bob.ID); err != nil {
		t.Fatalf("mark left: %v", err)
	}
	if _, err := s.FindRoomBetween(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after leave, got %v", err)
	}
}

func TestListActiveParticipants(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice Kim", "alice@example.com")
	bob := seedUser(t, s, "Bob Lee", "bob@example.com")
	room := seedRoom(t, s)

	for _, uid := range []int64{alice.ID, bob.ID} {
		if _, _, err := s.UpsertParticipant(ctx, room.ID, uid); err != nil {
			t.Fatalf("upsert participant %d: %v", uid, err)
		}
	}

	members, err := s.ListActiveParticipants(ctx, room.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(members) != 2 || members[0].Name != "Alice Kim" || members[1].Name != "Bob Lee" {
		t.Fatalf("unexpected members: %+v", members)
	}

	if _, err := s.MarkLeft(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("mark left: %v", err)
	}
	members, err = s.ListActiveParticipants(ctx, room.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(members) != 1 || members[0].UserID != bob.ID {
		t.Fatalf("expected only bob active, got %+v", members)
	}
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice Kim", "alice@example.com")
	room := seedRoom(t, s)

	bodies := []string{"one", "two", "three"}
	for _, body := range bodies {
		msg, err := s.AppendMessage(ctx, room.ID, alice.ID, body)
		if err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
		if msg.AuthorName != "Alice Kim" {
			t.Fatalf("expected author name filled in, got %q", msg.AuthorName)
		}
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != len(bodies) {
		t.Fatalf("expected %d messages, got %d", len(bodies), len(messages))
	}
	for i, body := range bodies {
		if messages[i].Body != body {
			t.Fatalf("position %d: expected %q, got %q", i, body, messages[i].Body)
		}
	}

	other, err := s.ListMessages(ctx, room.ID+1)
	if err != nil {
		t.Fatalf("list other room: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty history for other room, got %d", len(other))
	}
}
