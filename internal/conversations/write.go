// ABOUTME: Write operations of the conversation layer: sends, deletes and group membership
// ABOUTME: Errors propagate to the caller; sent messages come back normalized and enriched

package conversations

import (
	"context"
	"fmt"

	"github.com/lavoro/lavoro-chat/internal/api"
	"github.com/lavoro/lavoro-chat/internal/chat"
)

// SendMessage sends a direct message and returns the stored message with its
// sender resolved.
func (s *Service) SendMessage(ctx context.Context, msg api.OutgoingMessage, attachment *api.Attachment) (chat.Message, error) {
	sent, err := s.api.SendMessage(ctx, msg, attachment)
	if err != nil {
		return chat.Message{}, err
	}
	if sent.RecipientID == "" {
		sent.RecipientID = msg.ReceiverID
	}
	if sent.Sender.IsZero() {
		sent.Sender = chat.IDRef(msg.SenderID)
	}
	return s.prepareMessages(ctx, []chat.Message{*sent})[0], nil
}

// SendGroupMessage sends a group message.
func (s *Service) SendGroupMessage(ctx context.Context, msg api.OutgoingGroupMessage, attachment *api.Attachment) (chat.Message, error) {
	sent, err := s.api.SendGroupMessage(ctx, msg, attachment)
	if err != nil {
		return chat.Message{}, err
	}
	if sent.GroupID == "" {
		sent.GroupID = msg.GroupID
	}
	if sent.Sender.IsZero() {
		sent.Sender = chat.IDRef(msg.SenderID)
	}
	return s.prepareMessages(ctx, []chat.Message{*sent})[0], nil
}

// DeleteMessage deletes a direct message.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	return s.api.DeleteMessage(ctx, messageID)
}

// DeleteGroupMessage deletes a group message.
func (s *Service) DeleteGroupMessage(ctx context.Context, messageID string) error {
	return s.api.DeleteGroupMessage(ctx, messageID)
}

// CreateGroup creates a group. The creator is always a member.
func (s *Service) CreateGroup(ctx context.Context, group api.NewGroup, avatar *api.Attachment) (chat.GroupConversation, error) {
	if group.Name == "" {
		return chat.GroupConversation{}, fmt.Errorf("group name is required")
	}
	if group.CreatorID == "" {
		return chat.GroupConversation{}, fmt.Errorf("group creator is required")
	}

	record, err := s.api.CreateGroup(ctx, group, avatar)
	if err != nil {
		return chat.GroupConversation{}, err
	}

	created := record.Normalize(s.now())
	if !created.HasMember(group.CreatorID) {
		created.MemberIDs = insertSorted(created.MemberIDs, group.CreatorID)
	}
	return created, nil
}

// AddGroupMember adds userID to the group.
func (s *Service) AddGroupMember(ctx context.Context, groupID, userID string) (chat.GroupConversation, error) {
	record, err := s.api.AddGroupMember(ctx, groupID, userID)
	if err != nil {
		return chat.GroupConversation{}, err
	}
	return record.Normalize(s.now()), nil
}

// RemoveGroupMember removes userID from the group.
func (s *Service) RemoveGroupMember(ctx context.Context, groupID, userID string) (chat.GroupConversation, error) {
	record, err := s.api.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		return chat.GroupConversation{}, err
	}
	return record.Normalize(s.now()), nil
}
