package models

import "time"

type MessageType string

const (
	TypeText      MessageType = "text"
	TypeImage     MessageType = "image"
	TypeVideo     MessageType = "video"
	TypeAudio     MessageType = "audio"
	TypeDocument  MessageType = "document"
	TypeVoiceCall MessageType = "voice_call"
	TypeVideoCall MessageType = "video_call"
)

// Valid reports whether t is one of the message types the server accepts.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeVoiceCall, TypeVideoCall:
		return true
	}
	return false
}

// IsCall reports whether t is a call-log type.
func (t MessageType) IsCall() bool {
	return t == TypeVoiceCall || t == TypeVideoCall
}

// Message is the persisted message row. ID and Timestamp are assigned by the
// store at insert time; everything else comes from the client event.
type Message struct {
	ID           int         `json:"id"`
	SenderID     int         `json:"sender_id"`
	RecipientID  int         `json:"recipient_id,omitempty"`
	GroupID      int         `json:"group_id,omitempty"`
	Content      string      `json:"content,omitempty"`
	Type         MessageType `json:"message_type"`
	MediaURL     string      `json:"media_url,omitempty"`
	CallDuration int         `json:"call_duration,omitempty"`
	CallStatus   string      `json:"call_status,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	IsRead       bool        `json:"is_read"`
	ReadAt       *time.Time  `json:"read_at,omitempty"`
	IsDeleted    bool        `json:"-"`
}
