// Package dispatch is the state-machine core of the messaging layer. Every
// inbound frame is validated here, persisted through the storage gateway when
// the event calls for it, and fanned out through the room router. An event is
// atomic: a validation or storage failure emits a single error frame to the
// originating connection and nothing else happens.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"chatsphere/internal/events"
	"chatsphere/internal/models"
	"chatsphere/internal/registry"
	"chatsphere/internal/router"
	"chatsphere/internal/signaling"
	"chatsphere/internal/storage"
)

var (
	ErrValidation   = errors.New("invalid event")
	ErrUnauthorized = errors.New("not authorized")
)

type Dispatcher struct {
	reg    *registry.Registry
	router *router.Router
	store  storage.Gateway
	relay  *signaling.Relay
}

func New(reg *registry.Registry, rt *router.Router, store storage.Gateway, relay *signaling.Relay) *Dispatcher {
	return &Dispatcher{reg: reg, router: rt, store: store, relay: relay}
}

// Handle processes one inbound frame from conn. Errors are surfaced to the
// originating connection only and never abort the connection itself.
func (d *Dispatcher) Handle(ctx context.Context, conn *registry.Connection, raw []byte) {
	name, payload, err := events.Decode(raw)
	if err != nil {
		log.Printf("[DISPATCH] Rejected frame from user %d: %v", conn.UserID, err)
		d.fail(conn, "Unrecognized or malformed event")
		return
	}

	switch name {
	case events.JoinChat:
		err = d.handleJoin(ctx, conn, payload.(*events.JoinChatPayload))
	case events.LeaveChat:
		err = d.handleLeave(conn, payload.(*events.JoinChatPayload))
	case events.SendMessage:
		err = d.handleSendMessage(ctx, conn, payload.(*events.SendMessagePayload))
	case events.Typing:
		err = d.handleTyping(ctx, conn, payload.(*events.TypingPayload))
	case events.MessageRead:
		err = d.handleMessageRead(ctx, conn, payload.(*events.MessageReadPayload))
	case events.LogCall:
		err = d.handleLogCall(ctx, conn, payload.(*events.LogCallPayload))
	case events.CallInitiate, events.StartCall:
		err = d.relay.Initiate(ctx, conn.UserID, payload.(*events.CallSignalPayload))
	case events.CallAnswer:
		err = d.relay.Answer(payload.(*events.CallSignalPayload))
	case events.CallReject:
		err = d.relay.Reject(payload.(*events.CallSignalPayload))
	case events.CallEnd:
		err = d.relay.End(payload.(*events.CallSignalPayload))
	case events.IceCandidate:
		err = d.relay.Candidate(payload.(*events.CallSignalPayload))
	}

	if err != nil {
		log.Printf("[DISPATCH] %s from user %d failed: %v", name, conn.UserID, err)
		d.fail(conn, reason(err))
	}
}

func (d *Dispatcher) fail(conn *registry.Connection, msg string) {
	d.router.ToConnection(conn, events.Error, &events.ErrorPayload{Message: msg})
}

// reason strips sentinel prefixes so clients see a plain message.
func reason(err error) string {
	msg := err.Error()
	for _, prefix := range []string{ErrValidation.Error() + ": ", ErrUnauthorized.Error() + ": ", signaling.ErrMissingTarget.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrUnauthorized) || errors.Is(err, signaling.ErrMissingTarget) {
		return msg
	}
	return "Internal server error"
}

// handleJoin authorizes and joins a room. A user room is only joinable by its
// owner; a group room only by a current member per the durable store.
func (d *Dispatcher) handleJoin(ctx context.Context, conn *registry.Connection, p *events.JoinChatPayload) error {
	kind, id, ok := registry.ParseRoom(p.Room)
	if !ok {
		return fmt.Errorf("%w: invalid room key", ErrValidation)
	}

	switch kind {
	case "user":
		if id != conn.UserID {
			return fmt.Errorf("%w: cannot join another user's room", ErrUnauthorized)
		}
	case "group":
		members, err := d.store.GetGroupMembers(ctx, id)
		if err != nil {
			return fmt.Errorf("group membership lookup: %w", err)
		}
		if _, ok := members[conn.UserID]; !ok {
			return fmt.Errorf("%w: not a member of this group", ErrUnauthorized)
		}
	}

	if err := d.reg.Join(conn.ID, p.Room); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	d.router.Dispatch(events.JoinedChat, &events.JoinedChatPayload{Room: p.Room}, p.Room)
	return nil
}

func (d *Dispatcher) handleLeave(conn *registry.Connection, p *events.JoinChatPayload) error {
	if _, _, ok := registry.ParseRoom(p.Room); !ok {
		return fmt.Errorf("%w: invalid room key", ErrValidation)
	}
	d.reg.Leave(conn.ID, p.Room)
	return nil
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, conn *registry.Connection, p *events.SendMessagePayload) error {
	if p.Content == "" && p.MediaURL == "" {
		return fmt.Errorf("%w: no content provided", ErrValidation)
	}
	if (p.RecipientID == 0) == (p.GroupID == 0) {
		return fmt.Errorf("%w: exactly one of recipient_id or group_id must be set", ErrValidation)
	}

	msgType := models.MessageType(p.MessageType)
	if p.MessageType == "" {
		msgType = models.TypeText
	}
	if !msgType.Valid() || msgType.IsCall() {
		return fmt.Errorf("%w: invalid message_type %q", ErrValidation, p.MessageType)
	}

	// Sender lookup happens before the write so a failure leaves no row.
	sender, err := d.store.GetUser(ctx, conn.UserID)
	if err != nil {
		return fmt.Errorf("sender lookup: %w", err)
	}

	msg, err := d.store.CreateMessage(ctx, &models.Message{
		SenderID:    conn.UserID,
		RecipientID: p.RecipientID,
		GroupID:     p.GroupID,
		Content:     p.Content,
		Type:        msgType,
		MediaURL:    p.MediaURL,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	d.router.Dispatch(events.NewMessage, events.NewMessageFrom(msg, sender), router.TargetRooms(msg)...)
	return nil
}

// handleTyping is never persisted. Group typing excludes the typist's own
// connection; direct typing goes to the recipient's room only, so the
// typist's other devices stay quiet.
func (d *Dispatcher) handleTyping(ctx context.Context, conn *registry.Connection, p *events.TypingPayload) error {
	if p.RecipientID == 0 && p.GroupID == 0 {
		return fmt.Errorf("%w: recipient_id or group_id required", ErrValidation)
	}

	sender, err := d.store.GetUser(ctx, conn.UserID)
	if err != nil {
		return fmt.Errorf("sender lookup: %w", err)
	}

	payload := &events.UserTypingPayload{
		UserID:   conn.UserID,
		Username: sender.Username,
		IsTyping: p.IsTyping,
	}
	if p.GroupID != 0 {
		d.router.DispatchExcept(events.UserTyping, payload, registry.GroupRoom(p.GroupID), conn.ID)
	} else {
		d.router.Dispatch(events.UserTyping, payload, registry.UserRoom(p.RecipientID))
	}
	return nil
}

// handleMessageRead marks the batch read and notifies one sender: the sender
// of the first id that was actually updated, carrying only the updated ids.
// A batch spanning multiple senders still produces a single notification;
// the other senders catch up from the store. Re-reading an already-read
// message updates nothing and broadcasts nothing.
func (d *Dispatcher) handleMessageRead(ctx context.Context, conn *registry.Connection, p *events.MessageReadPayload) error {
	if len(p.MessageIDs) == 0 {
		return fmt.Errorf("%w: message_ids required", ErrValidation)
	}

	updated, err := d.store.MarkRead(ctx, p.MessageIDs, conn.UserID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if len(updated) == 0 {
		return nil
	}

	ids := make([]int, len(updated))
	for i, m := range updated {
		ids[i] = m.ID
	}
	d.router.Dispatch(events.MessagesRead, &events.MessagesReadPayload{MessageIDs: ids}, registry.UserRoom(updated[0].SenderID))
	return nil
}

// handleLogCall persists a call-log message and broadcasts it like any other
// direct message, plus a call_logged ack to the originating connection only.
func (d *Dispatcher) handleLogCall(ctx context.Context, conn *registry.Connection, p *events.LogCallPayload) error {
	if p.RecipientID == 0 {
		return fmt.Errorf("%w: recipient_id required", ErrValidation)
	}
	callType := models.MessageType(p.CallType)
	if !callType.IsCall() {
		return fmt.Errorf("%w: call_type must be voice_call or video_call", ErrValidation)
	}
	status := p.Status
	if status == "" {
		status = "answered"
	}

	sender, err := d.store.GetUser(ctx, conn.UserID)
	if err != nil {
		return fmt.Errorf("sender lookup: %w", err)
	}

	msg, err := d.store.CreateMessage(ctx, &models.Message{
		SenderID:     conn.UserID,
		RecipientID:  p.RecipientID,
		Content:      callTitle(callType),
		Type:         callType,
		CallDuration: p.Duration,
		CallStatus:   status,
	})
	if err != nil {
		return fmt.Errorf("persist call log: %w", err)
	}

	d.router.Dispatch(events.NewMessage, events.NewMessageFrom(msg, sender), router.TargetRooms(msg)...)
	d.router.ToConnection(conn, events.CallLogged, &events.CallLoggedPayload{MessageID: msg.ID})
	return nil
}

func callTitle(t models.MessageType) string {
	if t == models.TypeVideoCall {
		return "Video Call"
	}
	return "Voice Call"
}
