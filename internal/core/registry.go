package core

import "sync"

// connState tracks what a connection is registered as. The connection table
// and the user index form one arena updated together under Registry.mu.
type connState struct {
	userID int64
	rooms  map[int64]struct{}
}

// broadcastGroup is the set of connections subscribed to one room.
// Each group carries its own lock so fan-out to unrelated rooms never
// serializes.
type broadcastGroup struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
}

func (g *broadcastGroup) add(c *Client) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
}

func (g *broadcastGroup) remove(c *Client) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

func (g *broadcastGroup) snapshot() []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conns := make([]*Client, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	return conns
}

// Registry maps users to their live connections and rooms to their
// broadcast groups. Pure in-memory bookkeeping; rebuilt empty on restart.
// Durable membership lives in the store, the registry only routes delivery.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Client]*connState
	users map[int64]map[*Client]struct{}

	roomMu sync.RWMutex
	rooms  map[int64]*broadcastGroup
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Client]*connState),
		users: make(map[int64]map[*Client]struct{}),
		rooms: make(map[int64]*broadcastGroup),
	}
}

// Register binds a connection to a user identity. A user may hold several
// simultaneous connections.
func (r *Registry) Register(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c] = &connState{userID: userID, rooms: make(map[int64]struct{})}
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes the connection from the user index and from every
// broadcast group it subscribed to. Idempotent.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	state, ok := r.conns[c]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c)
	if set, ok := r.users[state.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.users, state.userID)
		}
	}
	rooms := make([]int64, 0, len(state.rooms))
	for roomID := range state.rooms {
		rooms = append(rooms, roomID)
	}
	r.mu.Unlock()

	for _, roomID := range rooms {
		r.dropFromRoom(c, roomID)
	}
}

// Subscribe adds the connection to the room's broadcast group.
// Idempotent; unregistered connections are ignored.
func (r *Registry) Subscribe(c *Client, roomID int64) {
	r.mu.Lock()
	state, ok := r.conns[c]
	if !ok {
		r.mu.Unlock()
		return
	}
	state.rooms[roomID] = struct{}{}
	r.mu.Unlock()

	// Add while still holding roomMu: dropFromRoom deletes a group it finds
	// empty, so adding after the unlock could land on an orphaned group.
	r.roomMu.Lock()
	group, ok := r.rooms[roomID]
	if !ok {
		group = &broadcastGroup{conns: make(map[*Client]struct{})}
		r.rooms[roomID] = group
	}
	group.add(c)
	r.roomMu.Unlock()
}

// Unsubscribe removes the connection from the room's broadcast group.
func (r *Registry) Unsubscribe(c *Client, roomID int64) {
	r.mu.Lock()
	if state, ok := r.conns[c]; ok {
		delete(state.rooms, roomID)
	}
	r.mu.Unlock()

	r.dropFromRoom(c, roomID)
}

func (r *Registry) dropFromRoom(c *Client, roomID int64) {
	r.roomMu.Lock()
	group, ok := r.rooms[roomID]
	if ok {
		group.remove(c)
		group.mu.RLock()
		empty := len(group.conns) == 0
		group.mu.RUnlock()
		if empty {
			delete(r.rooms, roomID)
		}
	}
	r.roomMu.Unlock()
}

// ConnectionsInRoom returns the room's broadcast group at this instant.
func (r *Registry) ConnectionsInRoom(roomID int64) []*Client {
	r.roomMu.RLock()
	group, ok := r.rooms[roomID]
	r.roomMu.RUnlock()
	if !ok {
		return nil
	}
	return group.snapshot()
}

// ConnectionsOfUser returns every live connection of the user.
func (r *Registry) ConnectionsOfUser(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	conns := make([]*Client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast delivers an event to every connection subscribed to the room,
// skipping except when non-nil.
func (r *Registry) Broadcast(roomID int64, ev *Event, except *Client) {
	for _, c := range r.ConnectionsInRoom(roomID) {
		if c == except {
			continue
		}
		c.deliver(ev)
	}
}
