package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/store"
	"github.com/duochat/duochat-server/internal/store/sqlite"
)

// staticVerifier resolves tokens from a fixed table.
type staticVerifier map[string]int64

func (v staticVerifier) VerifyToken(token string) (int64, error) {
	id, ok := v[token]
	if !ok {
		return 0, fmt.Errorf("unknown token")
	}
	return id, nil
}

type fixture struct {
	gw    *Gateway
	store store.Store
	alice *store.User
	bob   *store.User
	room  *store.Room
}

// newFixture builds a gateway over an in-memory store with two users and
// a room both are active participants of. Tokens are the usernames.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()

	alice, err := st.CreateUser(ctx, "Alice Kim", "alice@example.com", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := st.CreateUser(ctx, "Bob Lee", "bob@example.com", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	room, err := st.CreateRoom(ctx, "Chat between Alice Kim and Bob Lee", "Private chat room")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, uid := range []int64{alice.ID, bob.ID} {
		if _, _, err := st.UpsertParticipant(ctx, room.ID, uid); err != nil {
			t.Fatalf("add participant %d: %v", uid, err)
		}
	}

	verifier := staticVerifier{"alice-token": alice.ID, "bob-token": bob.ID}
	logger := zerolog.New(nil)

	gw := NewGateway(verifier, st, NewRegistry(), NewMembership(st), &logger)

	return &fixture{gw: gw, store: st, alice: alice, bob: bob, room: room}
}

// connect builds an authenticated session for the token and drains the
// authenticated ack.
func (f *fixture) connect(t *testing.T, token string) (*Session, *Client) {
	t.Helper()

	client := NewClient(token + "-conn")
	sess := f.gw.NewSession(client)
	sess.Authenticate(context.Background(), token)
	ev := mustEvent(t, client.Events, EventAuthenticated)
	if ev.Identity == nil {
		t.Fatalf("authenticated event missing identity")
	}
	return sess, client
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got kind %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
