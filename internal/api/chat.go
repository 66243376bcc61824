// ABOUTME: Read and membership endpoints of the chat API plus the user profile lookup
// ABOUTME: Each method maps to one REST route and returns wire records or an error

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// ConversationPayload is the data of GET /chat/conversation/{userId}/{otherUserId}.
type ConversationPayload struct {
	User     *chat.RawUser  `json:"user"`
	Messages []chat.Message `json:"messages"`
}

// GroupPayload is the data of GET /chat/group/{groupId}/{userId}.
type GroupPayload struct {
	Group    *chat.GroupRecord `json:"group"`
	Messages []chat.Message    `json:"messages"`
}

// NewGroup is the body of POST /chat/group.
type NewGroup struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatorID   string   `json:"creator"`
	MemberIDs   []string `json:"members"`
}

func chatPath(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return chatPrefix + fmt.Sprintf(format, args...)
}

// UserConversations fetches the conversation list of userID.
func (c *Client) UserConversations(ctx context.Context, userID string) ([]chat.ConversationRecord, error) {
	var records []chat.ConversationRecord
	if err := c.doJSON(ctx, http.MethodGet, chatPath("/user/%s", userID), nil, &records); err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}
	return records, nil
}

// Conversation fetches the message history between userID and peerID.
func (c *Client) Conversation(ctx context.Context, userID, peerID string) (*ConversationPayload, error) {
	var payload ConversationPayload
	if err := c.doJSON(ctx, http.MethodGet, chatPath("/conversation/%s/%s", userID, peerID), nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	return &payload, nil
}

// DeleteMessage deletes a direct message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, chatPath("/message/%s", messageID), nil, nil); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

// UserGroups fetches the groups userID belongs to.
func (c *Client) UserGroups(ctx context.Context, userID string) ([]chat.GroupRecord, error) {
	var records []chat.GroupRecord
	if err := c.doJSON(ctx, http.MethodGet, chatPath("/groups/%s", userID), nil, &records); err != nil {
		return nil, fmt.Errorf("fetching groups: %w", err)
	}
	return records, nil
}

// GroupMessages fetches a group's message history as seen by userID.
func (c *Client) GroupMessages(ctx context.Context, groupID, userID string) (*GroupPayload, error) {
	var payload GroupPayload
	if err := c.doJSON(ctx, http.MethodGet, chatPath("/group/%s/%s", groupID, userID), nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching group messages: %w", err)
	}
	return &payload, nil
}

// DeleteGroupMessage deletes a group message.
func (c *Client) DeleteGroupMessage(ctx context.Context, messageID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, chatPath("/group/message/%s", messageID), nil, nil); err != nil {
		return fmt.Errorf("deleting group message: %w", err)
	}
	return nil
}

// AddGroupMember adds userID to the group and returns the updated group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) (*chat.GroupRecord, error) {
	var group chat.GroupRecord
	if err := c.doJSON(ctx, http.MethodPut, chatPath("/group/%s/add/%s", groupID, userID), nil, &group); err != nil {
		return nil, fmt.Errorf("adding group member: %w", err)
	}
	return &group, nil
}

// RemoveGroupMember removes userID from the group and returns the updated group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID string) (*chat.GroupRecord, error) {
	var group chat.GroupRecord
	if err := c.doJSON(ctx, http.MethodPut, chatPath("/group/%s/remove/%s", groupID, userID), nil, &group); err != nil {
		return nil, fmt.Errorf("removing group member: %w", err)
	}
	return &group, nil
}

// Contacts fetches the users userID can start a conversation with.
func (c *Client) Contacts(ctx context.Context, userID string) ([]chat.RawUser, error) {
	var users []chat.RawUser
	if err := c.doJSON(ctx, http.MethodGet, chatPath("/contacts/%s", userID), nil, &users); err != nil {
		return nil, fmt.Errorf("fetching contacts: %w", err)
	}
	return users, nil
}

// User fetches a single profile from GET /users/{id}, outside the chat prefix.
func (c *Client) User(ctx context.Context, id string) (*chat.RawUser, error) {
	var user chat.RawUser
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	if user.ID == "" {
		user.ID = id
	}
	return &user, nil
}
