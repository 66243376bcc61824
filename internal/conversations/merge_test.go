// ABOUTME: Tests for merging real-time messages into conversation and group lists
// ABOUTME: Checks last-write-wins previews, move-to-front ordering and unread counts

package conversations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

func conv(peer string) chat.Conversation {
	return chat.Conversation{
		PeerUserID:  peer,
		LastMessage: chat.PlaceholderPreview(fixedNow),
		PeerDisplay: chat.RawUser{ID: peer, Name: peer}.Display(),
	}
}

func TestApplyIncoming_ExistingPeerMovesToFront(t *testing.T) {
	convs := []chat.Conversation{conv("a"), conv("b"), conv("c")}
	msg := chat.Message{ID: "m1", Sender: chat.IDRef("c"), RecipientID: "me", Body: "yo", SentAt: fixedNow}

	out := ApplyIncoming("me", convs, msg)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{out[0].PeerUserID, out[1].PeerUserID, out[2].PeerUserID})
	assert.Equal(t, "yo", out[0].LastMessage.Body)
	assert.Equal(t, 1, out[0].UnreadCount)

	// Input untouched
	assert.Equal(t, "c", convs[2].PeerUserID)
	assert.Equal(t, chat.StartConversationText, convs[2].LastMessage.Body)
}

func TestApplyIncoming_LastWriteWins(t *testing.T) {
	convs := []chat.Conversation{conv("a")}
	convs = ApplyIncoming("me", convs, chat.Message{ID: "m1", Sender: chat.IDRef("a"), Body: "first"})
	convs = ApplyIncoming("me", convs, chat.Message{ID: "m2", Sender: chat.IDRef("a"), Body: "second"})

	require.Len(t, convs, 1)
	assert.Equal(t, "m2", convs[0].LastMessage.MessageID)
	assert.Equal(t, 2, convs[0].UnreadCount)
}

func TestApplyIncoming_NewPeer(t *testing.T) {
	display := chat.RawUser{ID: "z", FirstName: "Zoe"}.Display()
	msg := chat.Message{ID: "m1", Sender: chat.IDRef("z"), RecipientID: "me", Body: "hello", SenderDisplay: &display}

	out := ApplyIncoming("me", []chat.Conversation{conv("a")}, msg)

	require.Len(t, out, 2)
	assert.Equal(t, "z", out[0].PeerUserID)
	assert.Equal(t, "Zoe", out[0].PeerDisplay.Name)
}

func TestApplyIncoming_OwnMessageUsesRecipient(t *testing.T) {
	msg := chat.Message{ID: "m1", Sender: chat.IDRef("me"), RecipientID: "b", Body: "sent by me"}

	out := ApplyIncoming("me", []chat.Conversation{conv("a"), conv("b")}, msg)

	assert.Equal(t, "b", out[0].PeerUserID)
	assert.Equal(t, 0, out[0].UnreadCount)
	assert.Equal(t, "b", out[0].PeerDisplay.Name)
}

func TestApplyIncomingGroup(t *testing.T) {
	groups := []chat.GroupConversation{
		{GroupID: "g1", Name: "One", MemberIDs: []string{"me", "x"}},
		{GroupID: "g2", Name: "Two", MemberIDs: []string{"me", "y"}},
	}

	out, ok := ApplyIncomingGroup("me", groups, chat.Message{ID: "m", GroupID: "g2", Sender: chat.IDRef("y"), Body: "hey"})
	require.True(t, ok)
	assert.Equal(t, "g2", out[0].GroupID)
	assert.Equal(t, "hey", out[0].LastMessage.Body)
	assert.Equal(t, 1, out[0].UnreadCount)
	assert.Equal(t, "g1", out[1].GroupID)

	_, ok = ApplyIncomingGroup("me", groups, chat.Message{GroupID: "unknown"})
	assert.False(t, ok)
}

func TestMarkConversationRead(t *testing.T) {
	convs := ApplyIncoming("me", []chat.Conversation{conv("a")}, chat.Message{ID: "m1", Sender: chat.IDRef("a")})
	require.Equal(t, 1, convs[0].UnreadCount)

	read := MarkConversationRead(convs, "a")
	assert.Equal(t, 0, read[0].UnreadCount)
	assert.True(t, read[0].LastMessage.IsRead)
	assert.Equal(t, 1, convs[0].UnreadCount)
}

func TestUpsertGroup(t *testing.T) {
	groups := []chat.GroupConversation{
		{GroupID: "g1", Name: "One"},
		{GroupID: "g2", Name: "Two", UnreadCount: 3, LastMessage: chat.MessagePreview{Body: "old"}},
	}

	out := UpsertGroup(groups, chat.GroupConversation{GroupID: "g2", Name: "Renamed"})
	require.Len(t, out, 2)
	assert.Equal(t, "Renamed", out[0].Name)
	assert.Equal(t, 3, out[0].UnreadCount)
	assert.Equal(t, "old", out[0].LastMessage.Body)
	assert.Equal(t, "g1", out[1].GroupID)

	out = UpsertGroup(out, chat.GroupConversation{GroupID: "g3"})
	assert.Len(t, out, 3)
	assert.Equal(t, "g3", out[0].GroupID)
	assert.Equal(t, "Two", groups[1].Name)
}

func TestRemoveGroup(t *testing.T) {
	groups := []chat.GroupConversation{{GroupID: "g1"}, {GroupID: "g2"}}
	out := RemoveGroup(groups, "g1")
	require.Len(t, out, 1)
	assert.Equal(t, "g2", out[0].GroupID)
	assert.Len(t, RemoveGroup(groups, "none"), 2)
}
