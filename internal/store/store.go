package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by store implementations when a row is absent.
var ErrNotFound = errors.New("not found")

// UserStatus is the presence flag shown on user profiles.
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusOffline UserStatus = "offline"
)

// User represents a registered account.
type User struct {
	ID           int64
	Fullname     string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
}

// Room is a durable two-party messaging context.
type Room struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Participant links a user to a room with join/leave history.
// At most one row ever exists per (room, user); re-joining reuses the row.
// LeftAt == nil means the membership is currently active.
type Participant struct {
	ID        int64
	RoomID    int64
	UserID    int64
	JoinedAt  *time.Time
	LeftAt    *time.Time
	CreatedAt time.Time
}

// Message is a persisted chat message. AuthorName is populated by queries
// that join the users table; it is not a column of chat_messages.
type Message struct {
	ID         int64
	RoomID     int64
	UserID     int64
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// RoomMember is an active participant as exposed to callers.
type RoomMember struct {
	UserID int64
	Name   string
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, fullname, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers lists all registered users.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUserStatus sets the user's presence flag.
	UpdateUserStatus(ctx context.Context, id int64, status UserStatus) error
}

// RoomStore handles room and participant persistence.
type RoomStore interface {
	// CreateRoom creates a new room.
	CreateRoom(ctx context.Context, name, description string) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// FindRoomBetween returns a room where both users hold active
	// participant rows, or ErrNotFound when no such room exists.
	FindRoomBetween(ctx context.Context, userA, userB int64) (*Room, error)

	// UpsertParticipant creates the (room, user) participant row, or
	// reactivates it when left, refreshing joined_at. A row that is
	// already active is returned unchanged. The flag reports whether the
	// membership actually transitioned to active; concurrent upserts for
	// the same pair observe it true exactly once.
	UpsertParticipant(ctx context.Context, roomID, userID int64) (*Participant, bool, error)

	// MarkLeft sets left_at on an active participant row. No-op when the
	// row is absent or already left; the flag reports whether a row was
	// actually closed.
	MarkLeft(ctx context.Context, roomID, userID int64) (bool, error)

	// IsActiveParticipant reports whether the user holds an active
	// (left_at IS NULL) participant row for the room.
	IsActiveParticipant(ctx context.Context, roomID, userID int64) (bool, error)

	// ListActiveParticipants lists the room's active members with names.
	ListActiveParticipants(ctx context.Context, roomID int64) ([]*RoomMember, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and returns it with the author
	// name and assigned timestamp filled in.
	AppendMessage(ctx context.Context, roomID, userID int64, body string) (*Message, error)

	// ListMessages retrieves the room's messages ordered by creation
	// time ascending.
	ListMessages(ctx context.Context, roomID int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
