package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a message within a persona's history.
type Role string

const (
	RoleSelf       Role = "self"
	RoleRemoteAI   Role = "remote-ai"
	RoleRemotePeer Role = "remote-peer"
)

// ContentType identifies the kind of payload a message carries.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentSticker ContentType = "sticker"
	ContentImage   ContentType = "image"
	ContentVideo   ContentType = "video"
)

// ReplyRef is a snapshot of a quoted message. It is a copy, not a live
// reference, so it survives recall of the original.
type ReplyRef struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	SenderName  string      `json:"sender_name"`
	ContentType ContentType `json:"content_type,omitempty"`
}

// Message is a single entry in a persona's history. Immutable once created
// except for IsRead and IsRecalled, which only ever flip false -> true.
type Message struct {
	ID            string      `json:"id"` // ULID
	Role          Role        `json:"role"`
	ContentType   ContentType `json:"content_type"`
	Payload       string      `json:"payload"` // text, or a media reference / data URL
	SenderPersona string      `json:"sender_persona,omitempty"`
	SentAt        int64       `json:"ts"` // Unix ms
	IsRead        bool        `json:"is_read,omitempty"`
	IsRecalled    bool        `json:"is_recalled,omitempty"`
	ReplyTo       *ReplyRef   `json:"reply_to,omitempty"`
}

// NewMessageID returns a time-sortable message ID.
func NewMessageID() string {
	return ulid.Make().String()
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, contentType ContentType, payload string) Message {
	return Message{
		ID:          NewMessageID(),
		Role:        role,
		ContentType: contentType,
		Payload:     payload,
		SentAt:      time.Now().UnixMilli(),
	}
}

// Snapshot returns a ReplyRef copy of the message for quoting.
func (m *Message) Snapshot(senderName string) *ReplyRef {
	return &ReplyRef{
		ID:          m.ID,
		Text:        m.Payload,
		SenderName:  senderName,
		ContentType: m.ContentType,
	}
}
