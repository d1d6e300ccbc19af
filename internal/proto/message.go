package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeAuthenticate = "authenticate"
	InboundTypeJoinRoom     = "join_room"
	InboundTypeLeaveRoom    = "leave_room"
	InboundTypeSendMessage  = "send_message"

	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"
	EventRoomJoined    = "room_joined"
	EventUserJoined    = "user_joined"
	EventRoomLeft      = "room_left"
	EventUserLeft      = "user_left"
	EventNewMessage    = "new_message"
	EventError         = "error"
)

// AuthenticateData carries the bearer token.
type AuthenticateData struct {
	Token string `json:"token"`
}

// RoomData addresses a room for join_room and leave_room.
type RoomData struct {
	RoomID int64 `json:"room_id"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID  int64  `json:"room_id"`
	Message string `json:"message"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// AuthenticatedData acknowledges a successful authenticate.
type AuthenticatedData struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// RoomJoinedData acknowledges a join to the caller.
type RoomJoinedData struct {
	RoomID string `json:"room_id"`
}

// RoomLeftData acknowledges a leave to the caller.
type RoomLeftData struct {
	RoomID string `json:"room_id"`
}

// UserJoinedData notifies other subscribers that a user joined the room.
type UserJoinedData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// UserLeftData notifies remaining subscribers that a user left the room.
type UserLeftData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// NewMessageData delivers a chat message to room subscribers.
type NewMessageData struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// ErrorData describes a scoped error delivered to the caller only.
type ErrorData struct {
	Message string `json:"message"`
}
