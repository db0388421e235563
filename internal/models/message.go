package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// BroadcastTarget is the recipient meaning "everyone in the room".
const BroadcastTarget = "Todos"

// Status texts appended to the log on presence changes.
const (
	StatusJoined = "entra na sala..."
	StatusLeft   = "sai da sala..."
)

// TimeLayout is the HH:mm:ss layout of Message.Time.
const TimeLayout = "15:04:05"

// MessageType classifies a log entry.
type MessageType string

const (
	TypeMessage        MessageType = "message"
	TypePrivateMessage MessageType = "private_message"
	TypeStatus         MessageType = "status"
)

// Message is one entry of the shared message log.
type Message struct {
	ID        string      `json:"id"` // ULID
	From      string      `json:"from"`
	To        string      `json:"to"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	Time      string      `json:"time"` // HH:mm:ss UTC
	Timestamp int64       `json:"ts"`   // Unix ms
}

// MessageEdit holds the fields an edit may replace.
type MessageEdit struct {
	To   string
	Text string
	Type MessageType
}

// NewStatus builds a status message announcing a presence change of name.
func NewStatus(name, text string) *Message {
	return &Message{
		From: name,
		To:   BroadcastTarget,
		Text: text,
		Type: TypeStatus,
	}
}

// Stamp assigns the ID and insertion time if they are not set yet.
func (m *Message) Stamp(now time.Time) {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.Timestamp == 0 {
		m.Timestamp = now.UnixMilli()
	}
	m.Time = time.UnixMilli(m.Timestamp).UTC().Format(TimeLayout)
}

// Apply replaces the mutable fields. From and ID never change.
func (m *Message) Apply(e MessageEdit) {
	m.To = e.To
	m.Text = e.Text
	m.Type = e.Type
}

// IsPublic reports whether the message type is readable by everyone.
func (m *Message) IsPublic() bool {
	return m.Type == TypeMessage || m.Type == TypeStatus
}

// VisibleTo reports whether viewer may read the message. Only private
// messages are restricted to their sender and addressee.
func (m *Message) VisibleTo(viewer string) bool {
	return m.From == viewer ||
		m.To == viewer ||
		m.To == BroadcastTarget ||
		m.IsPublic()
}
