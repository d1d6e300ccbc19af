package core

import "time"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventAuthenticated confirms a successful authenticate to the caller.
	EventAuthenticated EventKind = iota
	// EventAuthError notifies the caller that authentication failed.
	EventAuthError
	// EventRoomJoined confirms a join to the caller.
	EventRoomJoined
	// EventUserJoined notifies other room subscribers about a joined user.
	EventUserJoined
	// EventRoomLeft confirms a leave to the caller.
	EventRoomLeft
	// EventUserLeft notifies remaining room subscribers about a left user.
	EventUserLeft
	// EventNewMessage delivers a chat message to room subscribers.
	EventNewMessage
	// EventError notifies the caller about a domain error. Never broadcast.
	EventError
)

// Identity is the verified user behind an authenticated connection,
// produced once at authentication and threaded through every operation.
type Identity struct {
	UserID int64
	Name   string
	Email  string
}

// Message is the rendered chat message as broadcast to subscribers.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	UserName  string
	Body      string
	CreatedAt time.Time
}

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind     EventKind
	RoomID   int64
	UserID   int64
	UserName string
	Identity *Identity  // for EventAuthenticated
	Message  *Message   // for EventNewMessage
	Error    *CoreError // for EventAuthError and EventError
}
