// Package webhook classifies inbound Cloud API deliveries and routes
// them through contact reconciliation, message persistence, and the
// assistant reply flow.
package webhook

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/crmlat/wabot/internal/messages"
)

// ErrMalformedPayload is returned for bodies missing the expected
// entry/changes shape.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Payload is the raw Cloud API webhook body.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value is the single change payload carrying either statuses or messages.
type Value struct {
	MessagingProduct string        `json:"messaging_product"`
	Metadata         Metadata      `json:"metadata"`
	Contacts         []ContactInfo `json:"contacts"`
	Messages         []RawMessage  `json:"messages"`
	Statuses         []RawStatus   `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type ContactInfo struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// MediaContent is the nested object under a media-typed message.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
}

// RawMessage keeps both the typed fields and the full field map, so the
// nested payload of any content type can be extracted by name.
type RawMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`

	fields map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed fields and retains the raw field map.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	type alias RawMessage
	if err := json.Unmarshal(data, (*alias)(m)); err != nil {
		return err
	}
	return json.Unmarshal(data, &m.fields)
}

// Media returns the nested media object for media-typed messages.
func (m *RawMessage) Media() (MediaContent, bool) {
	raw, ok := m.fields[m.Type]
	if !ok {
		return MediaContent{}, false
	}
	var media MediaContent
	if err := json.Unmarshal(raw, &media); err != nil || media.ID == "" {
		return MediaContent{}, false
	}
	return media, true
}

// NestedPayload returns the raw object stored under the message type key.
func (m *RawMessage) NestedPayload() (json.RawMessage, bool) {
	raw, ok := m.fields[m.Type]
	if !ok || len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, false
	}
	return raw, true
}

type RawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		ErrorData struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"errors"`
}

// Kind tags the decoded event variant.
type Kind int

const (
	// KindIgnored covers keep-alives and unrecognized shapes; they must
	// still be acknowledged.
	KindIgnored Kind = iota
	KindStatus
	KindMessage
)

// StatusUpdate is a delivery state change for a previously sent message.
type StatusUpdate struct {
	WamID        string
	Status       messages.Status
	ErrorCode    string
	ErrorMessage string
	ErrorDetails string
}

// IncomingMessage is one user-originated message.
type IncomingMessage struct {
	WamID       string
	From        string
	PhoneID     string
	Type        messages.Type
	Timestamp   time.Time
	ProfileName string
	Raw         *RawMessage
}

// Event is the decoded webhook delivery: exactly one variant is set,
// selected by Kind.
type Event struct {
	Kind    Kind
	Status  *StatusUpdate
	Message *IncomingMessage
}

// Decode parses a webhook body into its event variant. The payload is
// decoded once here; downstream components never probe raw JSON.
func Decode(raw []byte) (Event, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, errors.Join(ErrMalformedPayload, err)
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return Event{}, ErrMalformedPayload
	}
	value := payload.Entry[0].Changes[0].Value

	if len(value.Statuses) > 0 {
		return Event{Kind: KindStatus, Status: decodeStatus(value.Statuses[0])}, nil
	}
	if len(value.Messages) > 0 {
		return Event{Kind: KindMessage, Message: decodeMessage(value)}, nil
	}
	return Event{Kind: KindIgnored}, nil
}

func decodeStatus(raw RawStatus) *StatusUpdate {
	status := &StatusUpdate{
		WamID:  raw.ID,
		Status: messages.Status(raw.Status),
	}
	if len(raw.Errors) > 0 {
		status.ErrorCode = strconv.Itoa(raw.Errors[0].Code)
		status.ErrorMessage = raw.Errors[0].Message
		status.ErrorDetails = raw.Errors[0].ErrorData.Details
	}
	return status
}

func decodeMessage(value Value) *IncomingMessage {
	raw := value.Messages[0]
	msg := &IncomingMessage{
		WamID:     raw.ID,
		From:      raw.From,
		PhoneID:   value.Metadata.PhoneNumberID,
		Type:      messages.Type(raw.Type),
		Timestamp: parseTimestamp(raw.Timestamp),
		Raw:       &raw,
	}
	if len(value.Contacts) > 0 {
		msg.ProfileName = value.Contacts[0].Profile.Name
	}
	return msg
}

func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
