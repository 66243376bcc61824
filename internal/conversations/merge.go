// ABOUTME: Folds real-time messages into conversation and group lists
// ABOUTME: The newest message for a peer or group replaces its preview and moves it to the front

package conversations

import (
	"sort"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// ApplyIncoming merges msg into convs as seen by userID and returns a new
// list. The conversation with the message's peer takes msg as its last
// message and moves to the front; an unknown peer gets a new conversation.
// Messages from the peer bump the unread count. The input is not modified.
func ApplyIncoming(userID string, convs []chat.Conversation, msg chat.Message) []chat.Conversation {
	peerID := msg.SenderID()
	fromPeer := true
	if peerID == userID {
		peerID = msg.RecipientID
		fromPeer = false
	}
	if peerID == "" {
		return append([]chat.Conversation(nil), convs...)
	}

	out := make([]chat.Conversation, 0, len(convs)+1)
	var current *chat.Conversation
	for i := range convs {
		if convs[i].PeerUserID == peerID && current == nil {
			c := convs[i]
			current = &c
			continue
		}
		out = append(out, convs[i])
	}

	if current == nil {
		current = &chat.Conversation{PeerUserID: peerID, PeerDisplay: chat.RawUser{ID: peerID}.Display()}
	}
	if fromPeer && msg.SenderDisplay != nil && !msg.SenderDisplay.IsUnknown() {
		current.PeerDisplay = *msg.SenderDisplay
	}

	current.LastMessage = chat.PreviewOf(msg)
	if fromPeer && !msg.IsRead {
		current.UnreadCount++
	}

	return append([]chat.Conversation{*current}, out...)
}

// ApplyIncomingGroup merges a group message into groups and returns a new
// list plus whether the group was known. Unknown groups leave the list as is.
func ApplyIncomingGroup(userID string, groups []chat.GroupConversation, msg chat.Message) ([]chat.GroupConversation, bool) {
	idx := -1
	for i := range groups {
		if groups[i].GroupID == msg.GroupID {
			idx = i
			break
		}
	}
	if idx < 0 || msg.GroupID == "" {
		return append([]chat.GroupConversation(nil), groups...), false
	}

	g := groups[idx]
	g.MemberIDs = append([]string(nil), g.MemberIDs...)
	g.LastMessage = chat.PreviewOf(msg)
	if msg.SenderID() != userID {
		g.UnreadCount++
	}

	out := make([]chat.GroupConversation, 0, len(groups))
	out = append(out, g)
	out = append(out, groups[:idx]...)
	out = append(out, groups[idx+1:]...)
	return out, true
}

// MarkConversationRead clears the unread count of the conversation with peerID.
func MarkConversationRead(convs []chat.Conversation, peerID string) []chat.Conversation {
	out := append([]chat.Conversation(nil), convs...)
	for i := range out {
		if out[i].PeerUserID == peerID {
			out[i].UnreadCount = 0
			out[i].LastMessage.IsRead = true
		}
	}
	return out
}

// UpsertGroup puts g at the front of groups, replacing an existing entry with
// the same id but keeping its preview and unread count.
func UpsertGroup(groups []chat.GroupConversation, g chat.GroupConversation) []chat.GroupConversation {
	out := make([]chat.GroupConversation, 0, len(groups)+1)
	out = append(out, g)
	for _, existing := range groups {
		if existing.GroupID == g.GroupID {
			out[0].LastMessage = existing.LastMessage
			out[0].UnreadCount = existing.UnreadCount
			continue
		}
		out = append(out, existing)
	}
	return out
}

// RemoveGroup drops the group with groupID.
func RemoveGroup(groups []chat.GroupConversation, groupID string) []chat.GroupConversation {
	out := make([]chat.GroupConversation, 0, len(groups))
	for _, g := range groups {
		if g.GroupID != groupID {
			out = append(out, g)
		}
	}
	return out
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}
