// Package router resolves which rooms an outbound event targets and fans it
// out over the connection registry. Delivery is fire-and-forget per
// connection: one slow or closed socket never blocks the rest of a room.
package router

import (
	"log"

	"chatsphere/internal/events"
	"chatsphere/internal/models"
	"chatsphere/internal/registry"

	"github.com/google/uuid"
)

// TargetRooms computes the room set for a validated message. A group message
// goes to its group room; a direct message goes to the recipient's room and
// the sender's own room, so every device of the sender sees the echo.
func TargetRooms(m *models.Message) []string {
	if m.GroupID != 0 {
		return []string{registry.GroupRoom(m.GroupID)}
	}
	return []string{
		registry.UserRoom(m.RecipientID),
		registry.UserRoom(m.SenderID),
	}
}

type Router struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// Dispatch serializes the event once and delivers it to every live member of
// every target room. Individual delivery failures are logged and skipped.
func (r *Router) Dispatch(name events.Name, payload any, rooms ...string) {
	frame, err := events.Marshal(name, payload)
	if err != nil {
		log.Printf("[ROUTER] Failed to encode %s: %v", name, err)
		return
	}
	for _, room := range rooms {
		for _, conn := range r.reg.MembersOf(room) {
			r.deliver(conn, name, frame)
		}
	}
}

// DispatchExcept is Dispatch over a single room, skipping one connection.
// Group typing uses it so the typist's own device does not echo.
func (r *Router) DispatchExcept(name events.Name, payload any, room string, exclude uuid.UUID) {
	frame, err := events.Marshal(name, payload)
	if err != nil {
		log.Printf("[ROUTER] Failed to encode %s: %v", name, err)
		return
	}
	for _, conn := range r.reg.MembersOf(room) {
		if conn.ID == exclude {
			continue
		}
		r.deliver(conn, name, frame)
	}
}

// Broadcast delivers to every live connection regardless of rooms. Presence
// is global in this design, so online/offline transitions go everywhere.
func (r *Router) Broadcast(name events.Name, payload any) {
	frame, err := events.Marshal(name, payload)
	if err != nil {
		log.Printf("[ROUTER] Failed to encode %s: %v", name, err)
		return
	}
	for _, conn := range r.reg.Connections() {
		r.deliver(conn, name, frame)
	}
}

// ToConnection delivers to a single connection; acks and errors go back only
// to the socket that caused them.
func (r *Router) ToConnection(conn *registry.Connection, name events.Name, payload any) {
	frame, err := events.Marshal(name, payload)
	if err != nil {
		log.Printf("[ROUTER] Failed to encode %s: %v", name, err)
		return
	}
	r.deliver(conn, name, frame)
}

func (r *Router) deliver(conn *registry.Connection, name events.Name, frame []byte) {
	if err := conn.Deliver(frame); err != nil {
		log.Printf("[ROUTER] Dropped %s for connection %s (user %d): %v", name, conn.ID, conn.UserID, err)
	}
}
