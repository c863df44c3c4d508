package registry

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry owns every live connection and the room membership maps. All of
// its state is derived and rebuildable: it is safe to lose on restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Connection
	rooms map[string]map[uuid.UUID]*Connection
	// joined indexes room keys per connection so Deregister releases every
	// membership atomically without scanning all rooms.
	joined map[uuid.UUID]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Connection),
		rooms:  make(map[string]map[uuid.UUID]*Connection),
		joined: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Register binds a connection into the registry. Registering an already
// known connection is a no-op.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; ok {
		return
	}
	r.conns[c.ID] = c
	r.joined[c.ID] = make(map[string]struct{})
	log.Printf("[REGISTRY] Connection %s registered for user %d (total: %d)", c.ID, c.UserID, len(r.conns))
}

// Join adds the connection to a room. Joining a room twice is a no-op.
func (r *Registry) Join(connID uuid.UUID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return ErrNotRegistered
	}
	if _, ok := r.joined[connID][room]; ok {
		return nil
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[uuid.UUID]*Connection)
	}
	r.rooms[room][connID] = c
	r.joined[connID][room] = struct{}{}
	return nil
}

// Leave removes the connection from a room. Leaving a non-member room is a
// no-op.
func (r *Registry) Leave(connID uuid.UUID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID uuid.UUID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.joined[connID]; ok {
		delete(joined, room)
	}
}

// Deregister removes the connection from every room and from the registry,
// closing its done channel. It reports the number of live connections the
// owning user still has, which drives the presence offline decision.
func (r *Registry) Deregister(connID uuid.UUID) (userID, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return 0, 0
	}
	for room := range r.joined[connID] {
		r.leaveLocked(connID, room)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)
	close(c.done)

	for _, other := range r.conns {
		if other.UserID == c.UserID {
			remaining++
		}
	}
	log.Printf("[REGISTRY] Connection %s deregistered for user %d (remaining for user: %d)", connID, c.UserID, remaining)
	return c.UserID, remaining
}

// MembersOf returns a snapshot of the room's live connections.
func (r *Registry) MembersOf(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Connections returns a snapshot of every live connection. Presence events
// broadcast to all of them.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// LiveConnections counts the user's currently registered connections.
func (r *Registry) LiveConnections(userID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		if c.UserID == userID {
			n++
		}
	}
	return n
}
