// ABOUTME: Persisted conversation and group snapshots keyed by user id
// ABOUTME: Write failures are logged; missing or corrupt snapshots read as empty lists

package conversations

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lavoro/lavoro-chat/internal/chat"
	"github.com/lavoro/lavoro-chat/internal/store"
)

// PersistConversations writes convs as the user's conversation snapshot.
func (s *Service) PersistConversations(ctx context.Context, userID string, convs []chat.Conversation) {
	s.persist(ctx, store.ConversationsKey(userID), convs)
}

// LoadPersistedConversations reads the user's conversation snapshot.
func (s *Service) LoadPersistedConversations(ctx context.Context, userID string) []chat.Conversation {
	convs := loadSnapshot[chat.Conversation](ctx, s, store.ConversationsKey(userID))
	if convs == nil {
		return []chat.Conversation{}
	}
	return convs
}

// PersistGroups writes groups as the user's group snapshot.
func (s *Service) PersistGroups(ctx context.Context, userID string, groups []chat.GroupConversation) {
	s.persist(ctx, store.GroupsKey(userID), groups)
}

// LoadPersistedGroups reads the user's group snapshot.
func (s *Service) LoadPersistedGroups(ctx context.Context, userID string) []chat.GroupConversation {
	groups := loadSnapshot[chat.GroupConversation](ctx, s, store.GroupsKey(userID))
	if groups == nil {
		return []chat.GroupConversation{}
	}
	return groups
}

func (s *Service) persist(ctx context.Context, key string, value any) {
	if s.store == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("encoding snapshot failed", "key", key, "error", err)
		return
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		s.logger.Warn("persisting snapshot failed", "key", key, "error", err)
	}
}

func loadSnapshot[T any](ctx context.Context, s *Service, key string) []T {
	if s.store == nil {
		return nil
	}

	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("reading snapshot failed", "key", key, "error", err)
		}
		return nil
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("discarding corrupt snapshot", "key", key, "error", err)
		return nil
	}
	return out
}
