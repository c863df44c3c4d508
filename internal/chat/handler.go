package chat

import (
	"context"
	"log"
	"net/http"
	"time"

	"chatsphere/internal/dispatch"
	"chatsphere/internal/middleware"
	"chatsphere/internal/presence"
	"chatsphere/internal/registry"

	"github.com/gorilla/websocket"
)

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the websocket entry point and the connect/disconnect
// lifecycle around the registry and presence tracker.
type Server struct {
	reg        *registry.Registry
	presence   *presence.Tracker
	dispatcher *dispatch.Dispatcher
}

func NewServer(reg *registry.Registry, tracker *presence.Tracker, d *dispatch.Dispatcher) *Server {
	return &Server{reg: reg, presence: tracker, dispatcher: d}
}

// ServeWS upgrades the request and registers the connection under the
// identity the auth middleware established. The core trusts that identity
// for the connection's lifetime.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	reg := registry.NewConnection(userID, sendBuffer)
	s.reg.Register(reg)
	s.presence.OnConnect(r.Context(), userID)

	client := &Client{
		Conn:    conn,
		Reg:     reg,
		Limiter: middleware.NewRateLimiter(5, 500*time.Millisecond),
		server:  s,
	}

	go client.WritePump()
	go client.ReadPump(context.Background())
}

// disconnect runs registry cleanup and presence re-evaluation synchronously
// before the connection's resources are released. It is the only path that
// can flip a user offline.
func (s *Server) disconnect(ctx context.Context, c *Client) {
	userID, remaining := s.reg.Deregister(c.Reg.ID)
	if userID == 0 {
		return
	}
	s.presence.OnDisconnect(ctx, userID, remaining)
}
