// Package registry tracks live websocket connections and their room
// memberships. It is the only structure mutated concurrently by multiple
// connection handlers, so every mutation runs under the registry lock and
// reads hand out snapshots, never live views.
package registry

import (
	"errors"
	"strconv"

	"github.com/google/uuid"
)

// Room key forms. A user room is a user's own multi-device inbox; a group
// room is shared by the group's current members.
func UserRoom(userID int) string   { return "user:" + strconv.Itoa(userID) }
func GroupRoom(groupID int) string { return "group:" + strconv.Itoa(groupID) }

// ParseRoom splits a room key into its kind ("user" or "group") and id.
func ParseRoom(key string) (kind string, id int, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			n, err := strconv.Atoi(key[i+1:])
			if err != nil || n <= 0 {
				return "", 0, false
			}
			kind = key[:i]
			if kind != "user" && kind != "group" {
				return "", 0, false
			}
			return kind, n, true
		}
	}
	return "", 0, false
}

var (
	ErrBufferFull    = errors.New("connection send buffer full")
	ErrConnClosed    = errors.New("connection closed")
	ErrNotRegistered = errors.New("connection not registered")
)

// Connection is one live client socket. The transport layer owns the
// websocket itself; the registry only sees the identity and the outbound
// send channel.
type Connection struct {
	ID     uuid.UUID
	UserID int
	send   chan []byte
	done   chan struct{}
}

func NewConnection(userID int, buffer int) *Connection {
	return &Connection{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Outbound exposes the send channel to the write pump.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// Done is closed when the connection is deregistered.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Deliver queues a frame without blocking. A full buffer means the consumer
// is too slow; the caller decides whether to evict.
func (c *Connection) Deliver(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}
