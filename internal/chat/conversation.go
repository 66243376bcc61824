// ABOUTME: Direct-message and group conversation types, wire records and normalization
// ABOUTME: Records decode the server payload; Normalize turns them into UI-ready values

package chat

import (
	"sort"
	"time"
)

// StartConversationText is the preview shown for conversations with no message yet.
const StartConversationText = "Démarrer une conversation..."

// MessagePreview is the last-message summary shown in a conversation list.
type MessagePreview struct {
	MessageID string    `json:"messageId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Body      string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
	IsRead    bool      `json:"is_read"`
}

// PlaceholderPreview is used when a conversation carries no last message.
func PlaceholderPreview(now time.Time) MessagePreview {
	return MessagePreview{
		Body:   StartConversationText,
		SentAt: now,
		IsRead: true,
	}
}

// PreviewOf summarizes m.
func PreviewOf(m Message) MessagePreview {
	return MessagePreview{
		MessageID: m.ID,
		SenderID:  m.SenderID(),
		Body:      m.Body,
		SentAt:    m.SentAt,
		IsRead:    m.IsRead,
	}
}

// Conversation is a direct-message thread with one peer, unique per peer for
// the owning user.
type Conversation struct {
	PeerUserID  string         `json:"peerUserId"`
	LastMessage MessagePreview `json:"lastMessage"`
	PeerDisplay UserDisplay    `json:"peer"`
	UnreadCount int            `json:"unreadCount"`
}

// ConversationRecord is one entry of GET /chat/user/{userId}.
type ConversationRecord struct {
	User        *RawUser `json:"user"`
	LastMessage *Message `json:"lastMessage"`
	UnreadCount int      `json:"unreadCount"`
}

// Normalize fills the placeholder preview and the display defaults.
func (r ConversationRecord) Normalize(now time.Time) Conversation {
	var user RawUser
	if r.User != nil {
		user = *r.User
	}

	preview := PlaceholderPreview(now)
	if r.LastMessage != nil {
		preview = PreviewOf(r.LastMessage.Normalize(now))
	}

	return Conversation{
		PeerUserID:  user.ID,
		LastMessage: preview,
		PeerDisplay: user.Display(),
		UnreadCount: r.UnreadCount,
	}
}

// GroupConversation is a group thread keyed by group id.
type GroupConversation struct {
	GroupID     string         `json:"groupId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatorID   string         `json:"creatorId,omitempty"`
	MemberIDs   []string       `json:"memberIds"` // sorted, unique
	Avatar      string         `json:"avatar,omitempty"`
	LastMessage MessagePreview `json:"lastMessage"`
	UnreadCount int            `json:"unreadCount"`
}

// HasMember reports whether id belongs to the group.
func (g GroupConversation) HasMember(id string) bool {
	i := sort.SearchStrings(g.MemberIDs, id)
	return i < len(g.MemberIDs) && g.MemberIDs[i] == id
}

// GroupRecord is a chat group as returned by the group endpoints.
type GroupRecord struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Creator     UserRef   `json:"creator"`
	Members     []UserRef `json:"members"`
	Avatar      string    `json:"avatar,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
}

// Normalize turns the record into a GroupConversation with a member id set.
func (r GroupRecord) Normalize(now time.Time) GroupConversation {
	seen := make(map[string]struct{}, len(r.Members))
	members := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		members = append(members, m.ID)
	}
	sort.Strings(members)

	preview := PlaceholderPreview(now)
	if r.LastMessage != nil {
		preview = PreviewOf(r.LastMessage.Normalize(now))
	}

	return GroupConversation{
		GroupID:     r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatorID:   r.Creator.ID,
		MemberIDs:   members,
		Avatar:      r.Avatar,
		LastMessage: preview,
		UnreadCount: r.UnreadCount,
	}
}
