// Package events defines the wire protocol spoken over each websocket
// connection: a JSON envelope {"event": ..., "data": {...}} per text frame.
// Inbound frames are decoded into strict payload structs at this boundary so
// the dispatcher never touches raw JSON; unknown or malformed frames are
// rejected here.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Name string

// Inbound events (client -> server).
const (
	JoinChat     Name = "join_chat"
	LeaveChat    Name = "leave_chat"
	SendMessage  Name = "send_message"
	Typing       Name = "typing"
	MessageRead  Name = "message_read"
	LogCall      Name = "log_call"
	CallInitiate Name = "call_initiate"
	StartCall    Name = "start_call" // legacy alias for call_initiate without an offer
	CallAnswer   Name = "call_answer"
	CallReject   Name = "call_reject"
	CallEnd      Name = "call_end"
	IceCandidate Name = "ice_candidate"
)

// Outbound events (server -> client).
const (
	JoinedChat           Name = "joined_chat"
	NewMessage           Name = "new_message"
	UserTyping           Name = "user_typing"
	MessagesRead         Name = "messages_read"
	UserOnline           Name = "user_online"
	UserOffline          Name = "user_offline"
	IncomingCall         Name = "incoming_call"
	CallAnswered         Name = "call_answered"
	CallRejected         Name = "call_rejected"
	CallEnded            Name = "call_ended"
	IceCandidateReceived Name = "ice_candidate_received"
	CallLogged           Name = "call_logged"
	Error                Name = "error"
)

var (
	ErrMalformed    = errors.New("malformed event payload")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the frame shape on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinChatPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	RecipientID int    `json:"recipient_id,omitempty"`
	GroupID     int    `json:"group_id,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
}

type TypingPayload struct {
	RecipientID int  `json:"recipient_id,omitempty"`
	GroupID     int  `json:"group_id,omitempty"`
	IsTyping    bool `json:"is_typing"`
}

type MessageReadPayload struct {
	MessageIDs []int `json:"message_ids"`
}

type LogCallPayload struct {
	RecipientID int    `json:"recipient_id"`
	CallType    string `json:"call_type"`
	Duration    int    `json:"duration"`
	Status      string `json:"status"`
}

// CallSignalPayload covers every relay event. The negotiation fields stay
// opaque raw JSON: the server forwards them verbatim and never inspects them.
type CallSignalPayload struct {
	RecipientID int             `json:"recipient_id,omitempty"`
	CallerID    int             `json:"caller_id,omitempty"`
	CallType    string          `json:"call_type,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	Offer       json.RawMessage `json:"offer,omitempty"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// Decode parses a raw frame into its event name and a typed payload pointer.
// The returned payload is one of the *Payload structs above, or nil for
// events that carry no data.
func Decode(raw []byte) (Name, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	name := Name(env.Event)

	unmarshal := func(dst any) (Name, any, error) {
		if len(env.Data) == 0 {
			return "", nil, fmt.Errorf("%w: %s requires a data object", ErrMalformed, name)
		}
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return name, dst, nil
	}

	switch name {
	case JoinChat, LeaveChat:
		return unmarshal(&JoinChatPayload{})
	case SendMessage:
		return unmarshal(&SendMessagePayload{})
	case Typing:
		return unmarshal(&TypingPayload{})
	case MessageRead:
		return unmarshal(&MessageReadPayload{})
	case LogCall:
		return unmarshal(&LogCallPayload{})
	case CallInitiate, StartCall, CallAnswer, CallReject, CallEnd, IceCandidate:
		return unmarshal(&CallSignalPayload{})
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Marshal wraps a payload in the wire envelope.
func Marshal(name Name, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Event: string(name), Data: data})
}
