package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"chatsphere/internal/events"
	"chatsphere/internal/middleware"
	"chatsphere/internal/registry"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxFrameSize   = 8192
	rateWarnWindow = 3 * time.Second
)

// Client binds one websocket to its registry connection and pumps frames in
// both directions. The read pump is the connection's lifetime: when it
// returns, the disconnect path runs exactly once.
type Client struct {
	Conn    *websocket.Conn
	Reg     *registry.Connection
	Limiter *middleware.RateLimiter

	server      *Server
	lastWarning time.Time
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.Reg.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Reg.Outbound():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever else is queued into the same write.
			n := len(c.Reg.Outbound())
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Reg.Outbound())
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.server.disconnect(ctx, c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[CLIENT] Unexpected close for user %d: %v", c.Reg.UserID, err)
			}
			break
		}

		if !c.Limiter.Allow() {
			if time.Since(c.lastWarning) > rateWarnWindow {
				c.warnRateLimited()
				c.lastWarning = time.Now()
			}
			continue
		}

		c.server.dispatcher.Handle(ctx, c.Reg, message)
	}
}

func (c *Client) warnRateLimited() {
	payload, _ := json.Marshal(events.ErrorPayload{Message: "Rate limit exceeded"})
	frame, _ := json.Marshal(events.Envelope{Event: string(events.Error), Data: payload})
	if err := c.Reg.Deliver(frame); err != nil {
		log.Printf("[CLIENT] Could not warn user %d about rate limit: %v", c.Reg.UserID, err)
	}
}
