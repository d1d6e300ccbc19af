package core

import "testing"

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	c1 := NewClient("c1")
	c2 := NewClient("c2")

	r.Register(1, c1)
	r.Register(1, c2)

	if got := len(r.ConnectionsOfUser(1)); got != 2 {
		t.Fatalf("expected 2 connections for user 1, got %d", got)
	}
	if got := r.ConnectionsOfUser(2); got != nil {
		t.Fatalf("expected no connections for user 2, got %d", len(got))
	}
}

func TestRegistryUnregisterDropsSubscriptions(t *testing.T) {
	r := NewRegistry()

	c := NewClient("c1")
	r.Register(1, c)
	r.Subscribe(c, 10)
	r.Subscribe(c, 20)

	if got := len(r.ConnectionsInRoom(10)); got != 1 {
		t.Fatalf("expected 1 connection in room 10, got %d", got)
	}

	r.Unregister(c)

	if got := r.ConnectionsOfUser(1); got != nil {
		t.Fatalf("expected user index cleared, got %d connections", len(got))
	}
	for _, roomID := range []int64{10, 20} {
		if got := r.ConnectionsInRoom(roomID); got != nil {
			t.Fatalf("expected room %d empty, got %d connections", roomID, len(got))
		}
	}

	// Unregistering again is a no-op.
	r.Unregister(c)
}

func TestRegistrySubscribeRequiresRegistration(t *testing.T) {
	r := NewRegistry()

	c := NewClient("c1")
	r.Subscribe(c, 10)

	if got := r.ConnectionsInRoom(10); got != nil {
		t.Fatalf("unregistered connection must not subscribe, got %d connections", len(got))
	}
}

func TestRegistryBroadcastSkipsExcept(t *testing.T) {
	r := NewRegistry()

	sender := NewClient("sender")
	peer := NewClient("peer")
	r.Register(1, sender)
	r.Register(2, peer)
	r.Subscribe(sender, 10)
	r.Subscribe(peer, 10)

	r.Broadcast(10, &Event{Kind: EventUserJoined, RoomID: 10}, sender)

	mustEvent(t, peer.Events, EventUserJoined)
	mustNoEvent(t, sender.Events)
}

func TestRegistrySubscribeDuringChurn(t *testing.T) {
	r := NewRegistry()

	churner := NewClient("churner")
	joiner := NewClient("joiner")
	r.Register(1, churner)
	r.Register(2, joiner)

	// The churner repeatedly empties the room so its group keeps getting
	// deleted; a subscribe landing in that window must still take effect.
	for i := 0; i < 10000; i++ {
		r.Subscribe(churner, 10)

		done := make(chan struct{})
		go func() {
			r.Unsubscribe(churner, 10)
			close(done)
		}()

		r.Subscribe(joiner, 10)
		<-done

		found := false
		for _, c := range r.ConnectionsInRoom(10) {
			if c == joiner {
				found = true
			}
		}
		if !found {
			t.Fatalf("iteration %d: joiner missing from room after subscribe", i)
		}

		r.Unsubscribe(joiner, 10)
	}
}

func TestRegistryUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry()

	c := NewClient("c1")
	r.Register(1, c)
	r.Subscribe(c, 10)
	r.Unsubscribe(c, 10)

	r.Broadcast(10, &Event{Kind: EventNewMessage, RoomID: 10}, nil)
	mustNoEvent(t, c.Events)
}
