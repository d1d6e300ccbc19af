package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duochat/duochat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	fullname      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'offline',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_rooms (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT,
	description TEXT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_participants (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	joined_at  DATETIME,
	left_at    DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (room_id, user_id),
	FOREIGN KEY (room_id) REFERENCES chat_rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (room_id) REFERENCES chat_rooms(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after
// the schema is applied. Useful for tests to seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, fullname, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (fullname, email, password_hash, status)
		VALUES (?, ?, ?, 'offline')
	`
	result, err := s.db.ExecContext(ctx, query, fullname, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, fullname, email, password_hash, status, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Fullname,
		&user.Email,
		&user.PasswordHash,
		&user.Status,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, fullname, email, password_hash, status, created_at
		FROM users
		WHERE email = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Fullname,
		&user.Email,
		&user.PasswordHash,
		&user.Status,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ListUsers lists all registered users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, fullname, email, password_hash, status, created_at
		FROM users
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Fullname, &user.Email, &user.PasswordHash, &user.Status, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// UpdateUserStatus sets the user's presence flag.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id int64, status store.UserStatus) error {
	query := `UPDATE users SET status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name, description string) (*store.Room, error) {
	query := `
		INSERT INTO chat_rooms (name, description)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, description)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, COALESCE(name, ''), COALESCE(description, ''), created_at, updated_at
		FROM chat_rooms
		WHERE id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// FindRoomBetween returns a room where both users hold active participant rows.
func (s *SQLiteStore) FindRoomBetween(ctx context.Context, userA, userB int64) (*store.Room, error) {
	query := `
		SELECT r.id, COALESCE(r.name, ''), COALESCE(r.description, ''), r.created_at, r.updated_at
		FROM chat_rooms r
		JOIN chat_participants p1 ON p1.room_id = r.id AND p1.user_id = ? AND p1.left_at IS NULL
		JOIN chat_participants p2 ON p2.room_id = r.id AND p2.user_id = ? AND p2.left_at IS NULL
		ORDER BY r.id ASC
		LIMIT 1
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room between %d and %d: %w", userA, userB, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room between users: %w", err)
	}

	return &room, nil
}

// UpsertParticipant creates or reactivates the (room, user) participant row.
// The UNIQUE(room_id, user_id) constraint guarantees a single row per pair;
// an already-active row is left untouched. The prior state is read inside
// the same transaction, so the returned activation flag is race-free.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, roomID, userID int64) (*store.Participant, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin upsert participant: %w", err)
	}
	defer tx.Rollback()

	var wasActive bool
	err = tx.QueryRowContext(ctx, `
		SELECT left_at IS NULL FROM chat_participants
		WHERE room_id = ? AND user_id = ?
	`, roomID, userID).Scan(&wasActive)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("query prior participation: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO chat_participants (room_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			joined_at = CASE WHEN chat_participants.left_at IS NOT NULL THEN excluded.joined_at ELSE chat_participants.joined_at END,
			left_at   = NULL
	`
	if _, err := tx.ExecContext(ctx, query, roomID, userID, now); err != nil {
		return nil, false, fmt.Errorf("upsert participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit upsert participant: %w", err)
	}

	p, err := s.getParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, false, err
	}
	return p, !wasActive, nil
}

func (s *SQLiteStore) getParticipant(ctx context.Context, roomID, userID int64) (*store.Participant, error) {
	query := `
		SELECT id, room_id, user_id, joined_at, left_at, created_at
		FROM chat_participants
		WHERE room_id = ? AND user_id = ?
	`
	var p store.Participant
	var joinedAt, leftAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(
		&p.ID,
		&p.RoomID,
		&p.UserID,
		&joinedAt,
		&leftAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant (%d, %d): %w", roomID, userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query participant: %w", err)
	}

	if joinedAt.Valid {
		p.JoinedAt = &joinedAt.Time
	}
	if leftAt.Valid {
		p.LeftAt = &leftAt.Time
	}

	return &p, nil
}

// MarkLeft sets left_at on an active participant row. Idempotent; the flag
// reports whether a row was actually closed.
func (s *SQLiteStore) MarkLeft(ctx context.Context, roomID, userID int64) (bool, error) {
	query := `
		UPDATE chat_participants
		SET left_at = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), roomID, userID)
	if err != nil {
		return false, fmt.Errorf("mark participant left: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// IsActiveParticipant reports whether the user holds an active participant row.
func (s *SQLiteStore) IsActiveParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	query := `
		SELECT 1 FROM chat_participants
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query participation: %w", err)
	}

	return true, nil
}

// ListActiveParticipants lists the room's active members with names.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context, roomID int64) ([]*store.RoomMember, error) {
	query := `
		SELECT p.user_id, u.fullname
		FROM chat_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = ? AND p.left_at IS NULL
		ORDER BY p.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var members []*store.RoomMember
	for rows.Next() {
		var m store.RoomMember
		if err := rows.Scan(&m.UserID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, &m)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// AppendMessage persists a message and returns it with the author name filled in.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, userID int64, body string) (*store.Message, error) {
	query := `
		INSERT INTO chat_messages (room_id, user_id, message, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, roomID, userID, body, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessage(ctx, id)
}

func (s *SQLiteStore) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.user_id, COALESCE(u.fullname, ''), m.message, m.created_at
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.UserID,
		&msg.AuthorName,
		&msg.Body,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// ListMessages retrieves the room's messages ordered by creation time ascending.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.user_id, COALESCE(u.fullname, ''), m.message, m.created_at
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.room_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.AuthorName, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
