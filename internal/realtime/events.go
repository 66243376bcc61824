// ABOUTME: Event classes exchanged with the chat socket server and their payloads
// ABOUTME: Inbound events keep the raw payload and decode on demand into typed values

package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// EventClass names an inbound event.
type EventClass string

// Inbound event classes.
const (
	ClassNewMessage              EventClass = "new_message"
	ClassMessageSent             EventClass = "message_sent"
	ClassNewGroupMessage         EventClass = "new_group_message"
	ClassGroupMessageSent        EventClass = "group_message_sent"
	ClassUserTyping              EventClass = "user_typing"
	ClassUserStopTyping          EventClass = "user_stop_typing"
	ClassMessageError            EventClass = "message_error"
	ClassMessageReadReceipt      EventClass = "message_read_receipt"
	ClassGroupMessageReadReceipt EventClass = "group_message_read_receipt"
	ClassMessageDeleted          EventClass = "message_deleted"
	ClassGroupMessageDeleted     EventClass = "group_message_deleted"
	ClassNewGroup                EventClass = "new_group"
	ClassAddedToGroup            EventClass = "added_to_group"
	ClassRemovedFromGroup        EventClass = "removed_from_group"

	// Published locally by the bridge when a session starts or ends.
	ClassConnected    EventClass = "connect"
	ClassDisconnected EventClass = "disconnect"
)

// Outbound event names.
const (
	emitUserConnected    = "user_connected"
	emitPrivateMessage   = "private_message"
	emitGroupMessage     = "group_message"
	emitTyping           = "typing"
	emitStopTyping       = "stop_typing"
	emitMessageRead      = "message_read"
	emitGroupMessageRead = "group_message_read"
)

// Event is an inbound event as delivered to subscribers.
type Event struct {
	Class      EventClass
	Payload    json.RawMessage
	ReceivedAt time.Time

	// Optimistic is the local entry an acknowledgement or error resolved, if any.
	Optimistic *Outgoing
}

// IncomingMessage is the payload of new_message and new_group_message.
type IncomingMessage struct {
	Message chat.Message      `json:"message"`
	Sender  *chat.RawUser     `json:"sender,omitempty"`
	Group   *chat.GroupRecord `json:"group,omitempty"`
}

// ChatMessage returns the message with the accompanying sender record folded
// in, so enrichment can use it instead of a lookup.
func (m IncomingMessage) ChatMessage() chat.Message {
	msg := m.Message
	if msg.GroupID == "" && m.Group != nil {
		msg.GroupID = m.Group.ID
	}
	if m.Sender == nil || m.Sender.ID == "" {
		return msg
	}
	if msg.Sender.IsZero() {
		msg.Sender = chat.IDRef(m.Sender.ID)
	}
	if msg.Sender.Kind != chat.RefEmbeddedFull && msg.Sender.ID == m.Sender.ID {
		if m.Sender.FirstName != "" {
			msg.Sender = chat.EmbeddedRef(*m.Sender)
		} else if m.Sender.Name != "" {
			display := m.Sender.Display()
			msg.SenderDisplay = &display
		}
	}
	return msg
}

// Typing is the payload of user_typing and user_stop_typing.
type Typing struct {
	SenderID string `json:"sender_id"`
}

// MessageError is the payload of message_error.
type MessageError struct {
	Error string `json:"error"`
}

// ReadReceipt is the payload of the read receipt events.
type ReadReceipt struct {
	MessageID string `json:"message_id"`
	ReaderID  string `json:"reader_id"`
	GroupID   string `json:"group_id,omitempty"`
}

// GroupMessageDeleted is the payload of group_message_deleted.
type GroupMessageDeleted struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

// IncomingMessage decodes new_message and new_group_message.
func (e Event) IncomingMessage() (IncomingMessage, error) {
	var m IncomingMessage
	if err := e.decode(&m, ClassNewMessage, ClassNewGroupMessage); err != nil {
		return m, err
	}
	return m, nil
}

// SentMessage decodes the stored message carried by message_sent and
// group_message_sent.
func (e Event) SentMessage() (chat.Message, error) {
	var m chat.Message
	if err := e.decode(&m, ClassMessageSent, ClassGroupMessageSent); err != nil {
		return m, err
	}
	return m, nil
}

// Typing decodes user_typing and user_stop_typing.
func (e Event) Typing() (Typing, error) {
	var t Typing
	err := e.decode(&t, ClassUserTyping, ClassUserStopTyping)
	return t, err
}

// MessageError decodes message_error.
func (e Event) MessageError() (MessageError, error) {
	var m MessageError
	err := e.decode(&m, ClassMessageError)
	return m, err
}

// ReadReceipt decodes the read receipt events.
func (e Event) ReadReceipt() (ReadReceipt, error) {
	var r ReadReceipt
	err := e.decode(&r, ClassMessageReadReceipt, ClassGroupMessageReadReceipt)
	return r, err
}

// DeletedMessageID decodes message_deleted, whose payload is the bare id.
func (e Event) DeletedMessageID() (string, error) {
	var id string
	err := e.decode(&id, ClassMessageDeleted)
	return id, err
}

// GroupMessageDeleted decodes group_message_deleted.
func (e Event) GroupMessageDeleted() (GroupMessageDeleted, error) {
	var d GroupMessageDeleted
	err := e.decode(&d, ClassGroupMessageDeleted)
	return d, err
}

// Group decodes new_group, added_to_group and removed_from_group.
func (e Event) Group() (chat.GroupRecord, error) {
	var g chat.GroupRecord
	err := e.decode(&g, ClassNewGroup, ClassAddedToGroup, ClassRemovedFromGroup)
	return g, err
}

func (e Event) decode(out any, classes ...EventClass) error {
	match := false
	for _, c := range classes {
		if e.Class == c {
			match = true
			break
		}
	}
	if !match {
		return fmt.Errorf("cannot decode %s event as %v", e.Class, classes)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Class)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Class, err)
	}
	return nil
}

// messageID extracts the message id used for duplicate suppression.
func messageID(class EventClass, payload json.RawMessage) string {
	switch class {
	case ClassNewMessage, ClassNewGroupMessage:
		var wrapped struct {
			Message struct {
				ID string `json:"_id"`
			} `json:"message"`
		}
		if json.Unmarshal(payload, &wrapped) == nil {
			return wrapped.Message.ID
		}
	case ClassMessageSent, ClassGroupMessageSent:
		var bare struct {
			ID string `json:"_id"`
		}
		if json.Unmarshal(payload, &bare) == nil {
			return bare.ID
		}
	}
	return ""
}

// clientID extracts a client_id echoed back on an acknowledgement.
func clientID(payload json.RawMessage) string {
	var ack struct {
		ClientID string `json:"client_id"`
	}
	if json.Unmarshal(payload, &ack) != nil {
		return ""
	}
	return ack.ClientID
}

// PrivateMessage is the private_message payload.
type PrivateMessage struct {
	ClientID       string `json:"client_id,omitempty"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Message        string `json:"message"`
	Attachment     string `json:"attachment,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// GroupMessage is the group_message payload.
type GroupMessage struct {
	ClientID       string `json:"client_id,omitempty"`
	GroupID        string `json:"group_id"`
	SenderID       string `json:"sender_id"`
	Message        string `json:"message"`
	Attachment     string `json:"attachment,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// TypingNotice is the typing and stop_typing payload.
type TypingNotice struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

// ReadNotice is the message_read and group_message_read payload.
type ReadNotice struct {
	MessageID string `json:"message_id"`
	ReaderID  string `json:"reader_id"`
}
