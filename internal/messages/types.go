// Package messages persists WhatsApp messages and dispatches inbound
// messages by content type.
package messages

import (
	"errors"
	"time"
)

// Status is the delivery state reported by the messaging platform.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Type is the message content type.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeAudio    Type = "audio"
	TypeVideo    Type = "video"
	TypeDocument Type = "document"
	TypeSticker  Type = "sticker"
	TypeOther    Type = "other"
	TypeTemplate Type = "template"
)

// MediaTypes are the inbound content types fetched through the media API.
var MediaTypes = map[Type]bool{
	TypeAudio:    true,
	TypeDocument: true,
	TypeImage:    true,
	TypeVideo:    true,
	TypeSticker:  true,
}

// Message is one persisted message row. WamID is the platform's unique
// message id and the idempotency key for inbound deliveries.
type Message struct {
	ID        int64     `json:"id"`
	WamID     string    `json:"wam_id"`
	Outgoing  bool      `json:"outgoing"`
	Type      Type      `json:"type"`
	Body      string    `json:"body"`
	Caption   string    `json:"caption,omitempty"`
	WaID      string    `json:"wa_id"`
	PhoneID   string    `json:"phone_id"`
	Status    Status    `json:"status"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersistInput describes a message to be written.
type PersistInput struct {
	WamID     string
	Outgoing  bool
	Type      Type
	Body      string
	Caption   string
	WaID      string
	PhoneID   string
	Data      string
	Timestamp time.Time
}

// Publisher receives a notification after every successful message
// create or status mutation. StatusChange distinguishes updates from
// newly received messages.
type Publisher interface {
	PublishMessageChanged(msg Message, statusChange bool)
}

// ErrNotFound is returned when no row matches the given wam id.
var ErrNotFound = errors.New("message not found")
