package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/store"
)

// TokenVerifier validates a bearer token and resolves the user id it carries.
// Implemented by the auth service; the core never parses tokens itself.
type TokenVerifier interface {
	VerifyToken(token string) (int64, error)
}

// Gateway owns the shared state of the room session protocol: the token
// verifier, the store, the membership manager, the connection registry and
// the per-room send locks.
type Gateway struct {
	verifier   TokenVerifier
	store      store.Store
	membership *Membership
	registry   *Registry
	log        *zerolog.Logger

	sendMu    sync.Mutex
	sendLocks map[int64]*sync.Mutex
}

// NewGateway wires the session protocol's collaborators together.
func NewGateway(verifier TokenVerifier, st store.Store, registry *Registry, membership *Membership, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		verifier:   verifier,
		store:      st,
		membership: membership,
		registry:   registry,
		log:        logger,
		sendLocks:  make(map[int64]*sync.Mutex),
	}
}

// Registry exposes the connection registry for transports and tests.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// roomLock returns the mutex serializing sends for one room. Sends to
// different rooms proceed in parallel.
func (g *Gateway) roomLock(roomID int64) *sync.Mutex {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	l, ok := g.sendLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		g.sendLocks[roomID] = l
	}
	return l
}

// Session is the per-connection state machine: Unauthenticated until
// Authenticate succeeds, then able to join, leave and send. All methods of
// one session run on the connection's read loop goroutine, so a session is
// never invoked concurrently and disconnect cannot race an in-flight
// operation of the same connection.
type Session struct {
	gw       *Gateway
	client   *Client
	identity *Identity
}

// NewSession creates the protocol state machine for one connection.
func (g *Gateway) NewSession(c *Client) *Session {
	return &Session{gw: g, client: c}
}

// Identity returns the verified identity, or nil before authentication.
func (s *Session) Identity() *Identity {
	return s.identity
}

// Authenticate validates the bearer token and registers the connection
// under the resolved user. On failure the connection stays open and
// unauthenticated so the client may retry.
func (s *Session) Authenticate(ctx context.Context, token string) {
	if token == "" {
		s.client.deliver(&Event{Kind: EventAuthError, Error: coreError(ErrCodeUnauthorized, "Token is required")})
		return
	}

	userID, err := s.gw.verifier.VerifyToken(token)
	if err != nil {
		s.gw.log.Debug().Err(err).Str("conn_id", s.client.ID).Msg("token rejected")
		s.client.deliver(&Event{Kind: EventAuthError, Error: coreError(ErrCodeUnauthorized, "Invalid token")})
		return
	}

	user, err := s.gw.store.GetUserByID(ctx, userID)
	if err != nil {
		s.gw.log.Debug().Err(err).Int64("user_id", userID).Msg("token user not found")
		s.client.deliver(&Event{Kind: EventAuthError, Error: coreError(ErrCodeUnauthorized, "Invalid token")})
		return
	}

	// Re-authentication rebinds the connection to the new identity.
	if s.identity != nil {
		s.gw.registry.Unregister(s.client)
	}

	s.identity = &Identity{UserID: user.ID, Name: user.Fullname, Email: user.Email}
	s.gw.registry.Register(user.ID, s.client)

	s.client.deliver(&Event{Kind: EventAuthenticated, Identity: s.identity})
}

// Join validates the room, upserts the participant row and subscribes the
// connection to the room's broadcast group. Other subscribers are notified
// only when the membership actually became active; the store decides that
// atomically, so concurrent joins of the same user emit one user_joined.
func (s *Session) Join(ctx context.Context, roomID int64) {
	if s.identity == nil {
		s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeUnauthorized, "Not authenticated")})
		return
	}

	if _, err := s.gw.store.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeNotFound, "Room not found")})
			return
		}
		s.fail(roomID, "load room", err)
		return
	}

	_, activated, err := s.gw.membership.Join(ctx, roomID, s.identity.UserID)
	if err != nil {
		s.fail(roomID, "join room", err)
		return
	}

	s.gw.registry.Subscribe(s.client, roomID)

	s.client.deliver(&Event{Kind: EventRoomJoined, RoomID: roomID})

	if activated {
		s.gw.registry.Broadcast(roomID, &Event{
			Kind:     EventUserJoined,
			RoomID:   roomID,
			UserID:   s.identity.UserID,
			UserName: s.identity.Name,
		}, s.client)
	}
}

// Leave marks the participant row as left and unsubscribes the connection.
// Idempotent: leaving twice acks both times and notifies others once.
func (s *Session) Leave(ctx context.Context, roomID int64) {
	if s.identity == nil {
		s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeUnauthorized, "Not authenticated")})
		return
	}

	left, err := s.gw.membership.Leave(ctx, roomID, s.identity.UserID)
	if err != nil {
		s.fail(roomID, "leave room", err)
		return
	}

	s.gw.registry.Unsubscribe(s.client, roomID)

	s.client.deliver(&Event{Kind: EventRoomLeft, RoomID: roomID})

	if left {
		s.gw.registry.Broadcast(roomID, &Event{
			Kind:     EventUserLeft,
			RoomID:   roomID,
			UserID:   s.identity.UserID,
			UserName: s.identity.Name,
		}, s.client)
	}
}

// Send persists the message and fans it out to every connection currently
// subscribed to the room, the sender's other connections included. The
// per-room lock is held across persist and fan-out so delivery order equals
// persistence order for every subscriber; a persistence failure aborts
// before any broadcast.
func (s *Session) Send(ctx context.Context, roomID int64, body string) {
	if s.identity == nil {
		s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeUnauthorized, "Not authenticated")})
		return
	}

	body = strings.TrimSpace(body)
	if body == "" {
		s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeValidation, "Message cannot be empty")})
		return
	}

	active, err := s.gw.membership.IsActive(ctx, roomID, s.identity.UserID)
	if err != nil {
		s.fail(roomID, "check membership", err)
		return
	}
	if !active {
		s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeNotParticipant, "You are not a participant of this room")})
		return
	}

	lock := s.gw.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.gw.store.AppendMessage(ctx, roomID, s.identity.UserID, body)
	if err != nil {
		s.fail(roomID, "append message", err)
		return
	}

	s.gw.registry.Broadcast(roomID, &Event{
		Kind:   EventNewMessage,
		RoomID: roomID,
		Message: &Message{
			ID:        msg.ID,
			RoomID:    msg.RoomID,
			UserID:    msg.UserID,
			UserName:  s.identity.Name,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		},
	}, nil)
}

// Disconnect drops the connection from the registry. Durable membership is
// untouched: presence in a room survives reconnects, only an explicit
// leave changes it. Idempotent.
func (s *Session) Disconnect() {
	s.gw.registry.Unregister(s.client)
}

func (s *Session) fail(roomID int64, op string, err error) {
	s.gw.log.Error().Err(err).Int64("room_id", roomID).Str("conn_id", s.client.ID).Msg(op + " failed")
	s.client.deliver(&Event{Kind: EventError, RoomID: roomID, Error: coreError(ErrCodeStore, "Internal error")})
}
