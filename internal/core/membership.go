package core

import (
	"context"

	"github.com/duochat/duochat-server/internal/store"
)

// Membership is the in-process authority for durable room membership.
// Every call goes straight to the store, so an answer observed after a
// Leave return is never stale.
type Membership struct {
	store store.RoomStore
}

// NewMembership creates a membership manager backed by the room store.
func NewMembership(roomStore store.RoomStore) *Membership {
	return &Membership{store: roomStore}
}

// IsActive reports whether the user currently holds an active participant
// row for the room.
func (m *Membership) IsActive(ctx context.Context, roomID, userID int64) (bool, error) {
	return m.store.IsActiveParticipant(ctx, roomID, userID)
}

// Join creates or reactivates the participant row. Idempotent for an
// already-active membership; the flag reports whether the membership
// actually became active, decided atomically by the store so concurrent
// joins of the same pair see it true exactly once.
func (m *Membership) Join(ctx context.Context, roomID, userID int64) (*store.Participant, bool, error) {
	return m.store.UpsertParticipant(ctx, roomID, userID)
}

// Leave marks the participant row as left. Idempotent; the flag reports
// whether an active membership was actually closed.
func (m *Membership) Leave(ctx context.Context, roomID, userID int64) (bool, error) {
	return m.store.MarkLeft(ctx, roomID, userID)
}

// ActiveParticipants lists the room's active members with display names.
func (m *Membership) ActiveParticipants(ctx context.Context, roomID int64) ([]*store.RoomMember, error) {
	return m.store.ListActiveParticipants(ctx, roomID)
}
