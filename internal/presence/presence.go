// Package presence derives per-user online state from the live connection
// count. A user is online while at least one socket is registered; the last
// socket disconnecting flips them offline. Store writes and broadcasts are
// best-effort and never roll back a transition.
package presence

import (
	"context"
	"log"
	"time"

	"chatsphere/internal/events"
	"chatsphere/internal/registry"
	"chatsphere/internal/router"
)

// Store persists the presence record so it survives the process. The
// in-memory view in the registry is authoritative for liveness; the store
// only backs last_seen and the flag other services read.
type Store interface {
	SetOnline(ctx context.Context, userID int, at time.Time) error
	SetOffline(ctx context.Context, userID int, at time.Time) error
	Get(ctx context.Context, userID int) (online bool, lastSeen time.Time, err error)
}

type Tracker struct {
	reg    *registry.Registry
	store  Store
	router *router.Router
}

func NewTracker(reg *registry.Registry, store Store, rt *router.Router) *Tracker {
	return &Tracker{reg: reg, store: store, router: rt}
}

// OnConnect marks the user online and announces it to every connection.
func (t *Tracker) OnConnect(ctx context.Context, userID int) {
	if err := t.store.SetOnline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("[PRESENCE] Failed to persist online state for user %d: %v", userID, err)
	}
	t.router.Broadcast(events.UserOnline, &events.PresencePayload{UserID: userID})
}

// OnDisconnect re-evaluates after a deregistration. remaining is the user's
// live connection count reported by the registry; a second device going away
// must not mark the user offline while the first is still up.
func (t *Tracker) OnDisconnect(ctx context.Context, userID, remaining int) {
	if remaining > 0 {
		return
	}
	if err := t.store.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("[PRESENCE] Failed to persist offline state for user %d: %v", userID, err)
	}
	t.router.Broadcast(events.UserOffline, &events.PresencePayload{UserID: userID})
}

// IsOnline reports liveness from the registry, not the store.
func (t *Tracker) IsOnline(userID int) bool {
	return t.reg.LiveConnections(userID) > 0
}
