// Package signaling relays WebRTC call negotiation between two users' rooms.
// The relay is stateless: each event resolves exactly one target room from an
// id in the payload and forwards the negotiation blobs verbatim. Nothing here
// is persisted; only a log_call event leaves a durable trace, and a call with
// no terminating event simply leaves none (known gap, kept as-is).
package signaling

import (
	"context"
	"errors"
	"fmt"

	"chatsphere/internal/events"
	"chatsphere/internal/registry"
	"chatsphere/internal/router"
	"chatsphere/internal/storage"
)

var ErrMissingTarget = errors.New("signaling event missing target id")

type Relay struct {
	router *router.Router
	users  storage.Gateway
}

func New(rt *router.Router, users storage.Gateway) *Relay {
	return &Relay{router: rt, users: users}
}

// Initiate forwards the caller's offer to the recipient's room as
// incoming_call, enriched with the caller's name and picture.
func (r *Relay) Initiate(ctx context.Context, callerID int, p *events.CallSignalPayload) error {
	if p.RecipientID == 0 {
		return fmt.Errorf("%w: recipient_id required", ErrMissingTarget)
	}
	caller, err := r.users.GetUser(ctx, callerID)
	if err != nil {
		return fmt.Errorf("caller lookup: %w", err)
	}
	callType := p.CallType
	if callType == "" {
		callType = "voice"
	}
	r.router.Dispatch(events.IncomingCall, &events.IncomingCallPayload{
		CallerID:   callerID,
		CallerName: caller.Username,
		CallerPic:  caller.ProfilePic,
		CallType:   callType,
		RoomID:     p.RoomID,
		Offer:      p.Offer,
	}, registry.UserRoom(p.RecipientID))
	return nil
}

// Answer forwards the callee's answer back to the caller's room.
func (r *Relay) Answer(p *events.CallSignalPayload) error {
	if p.CallerID == 0 {
		return fmt.Errorf("%w: caller_id required", ErrMissingTarget)
	}
	r.router.Dispatch(events.CallAnswered, &events.CallAnsweredPayload{
		RoomID: p.RoomID,
		Answer: p.Answer,
	}, registry.UserRoom(p.CallerID))
	return nil
}

// Reject notifies the caller's room that the call was declined.
func (r *Relay) Reject(p *events.CallSignalPayload) error {
	if p.CallerID == 0 {
		return fmt.Errorf("%w: caller_id required", ErrMissingTarget)
	}
	r.router.Dispatch(events.CallRejected, struct{}{}, registry.UserRoom(p.CallerID))
	return nil
}

// End notifies the other party's room that the call is over.
func (r *Relay) End(p *events.CallSignalPayload) error {
	if p.RecipientID == 0 {
		return fmt.Errorf("%w: recipient_id required", ErrMissingTarget)
	}
	r.router.Dispatch(events.CallEnded, &events.CallEndedPayload{RoomID: p.RoomID}, registry.UserRoom(p.RecipientID))
	return nil
}

// Candidate forwards one ICE candidate to the other party's room.
func (r *Relay) Candidate(p *events.CallSignalPayload) error {
	if p.RecipientID == 0 {
		return fmt.Errorf("%w: recipient_id required", ErrMissingTarget)
	}
	r.router.Dispatch(events.IceCandidateReceived, &events.IceCandidatePayload{
		RoomID:    p.RoomID,
		Candidate: p.Candidate,
	}, registry.UserRoom(p.RecipientID))
	return nil
}
