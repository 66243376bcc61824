// ABOUTME: Message type for direct and group chat plus its wire encoding
// ABOUTME: Normalizes missing ids and timestamps the way the chat UI expects

package chat

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// AttachmentType values the server assigns to uploaded files.
const (
	AttachmentImage   = "image"
	AttachmentFile    = "file"
	AttachmentVideo   = "video"
	AttachmentPDF     = "pdf"
	AttachmentWord    = "word"
	AttachmentExcel   = "excel"
	AttachmentArchive = "archive"
)

// AttachmentRef points at an uploaded file.
type AttachmentRef struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// Message is a direct or group chat message. SenderDisplay is derived by
// enrichment and never trusted from the wire when Sender embeds a full record.
type Message struct {
	ID            string
	ClientID      string // client-generated id correlating an optimistic send
	Sender        UserRef
	RecipientID   string // peer id for direct messages
	GroupID       string // group id for group messages
	Body          string
	Attachment    *AttachmentRef
	SentAt        time.Time
	IsRead        bool
	ReadBy        []string
	SenderDisplay *UserDisplay
}

// messageWire is the server's JSON layout for a message.
type messageWire struct {
	ID             string       `json:"_id,omitempty"`
	ClientID       string       `json:"client_id,omitempty"`
	SenderID       UserRef      `json:"sender_id"`
	ReceiverID     UserRef      `json:"receiver_id,omitzero"`
	GroupID        UserRef      `json:"group_id,omitzero"`
	Message        string       `json:"message"`
	Attachment     string       `json:"attachment,omitempty"`
	AttachmentType string       `json:"attachment_type,omitempty"`
	SentAt         *time.Time   `json:"sent_at,omitempty"`
	IsRead         bool         `json:"is_read,omitempty"`
	ReadBy         []string     `json:"read_by,omitempty"`
	Sender         *UserDisplay `json:"sender,omitempty"`
}

// UnmarshalJSON decodes the server layout.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}

	*m = Message{
		ID:            w.ID,
		ClientID:      w.ClientID,
		Sender:        w.SenderID,
		RecipientID:   w.ReceiverID.ID,
		GroupID:       w.GroupID.ID,
		Body:          w.Message,
		IsRead:        w.IsRead,
		ReadBy:        w.ReadBy,
		SenderDisplay: w.Sender,
	}
	if w.SentAt != nil {
		m.SentAt = *w.SentAt
	}
	if w.Attachment != "" {
		m.Attachment = &AttachmentRef{URL: w.Attachment, Type: w.AttachmentType}
	}
	return nil
}

// MarshalJSON encodes the server layout.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		ID:         m.ID,
		ClientID:   m.ClientID,
		SenderID:   m.Sender,
		ReceiverID: IDRef(m.RecipientID),
		GroupID:    IDRef(m.GroupID),
		Message:    m.Body,
		IsRead:     m.IsRead,
		ReadBy:     m.ReadBy,
		Sender:     m.SenderDisplay,
	}
	if !m.SentAt.IsZero() {
		sentAt := m.SentAt
		w.SentAt = &sentAt
	}
	if m.Attachment != nil {
		w.Attachment = m.Attachment.URL
		w.AttachmentType = m.Attachment.Type
	}
	return json.Marshal(w)
}

// SenderID returns the id behind the sender reference.
func (m Message) SenderID() string {
	return m.Sender.ID
}

var tempIDSeq atomic.Uint64

// TempID returns a local placeholder id for messages the server sent without one.
func TempID(now time.Time) string {
	return fmt.Sprintf("temp_%d_%d", now.UnixMilli(), tempIDSeq.Add(1))
}

// Normalize fills a missing id with a temp id and a missing timestamp with now.
func (m Message) Normalize(now time.Time) Message {
	if m.ID == "" {
		m.ID = TempID(now)
	}
	if m.SentAt.IsZero() {
		m.SentAt = now
	}
	return m
}

// NormalizeMessages applies Normalize to a copy of msgs.
func NormalizeMessages(msgs []Message, now time.Time) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Normalize(now)
	}
	return out
}
