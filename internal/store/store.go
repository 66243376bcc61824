// ABOUTME: Store interface for locally persisted chat snapshots
// ABOUTME: Defines the key families and the not-found sentinel shared by all backends

package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no snapshot exists under a key
var ErrNotFound = errors.New("not found")

// Key prefixes for the snapshot families. The owning user's id is appended.
const (
	ConversationsPrefix = "chat_conversations_"
	GroupsPrefix        = "chat_groups_"
)

// ConversationsKey is the key holding a user's direct-message conversation list.
func ConversationsKey(userID string) string {
	return ConversationsPrefix + userID
}

// GroupsKey is the key holding a user's group conversation list.
func GroupsKey(userID string) string {
	return GroupsPrefix + userID
}

// UserIDFromKey extracts the owning user id from a snapshot key.
// Returns false if the key belongs to neither family.
func UserIDFromKey(key string) (string, bool) {
	for _, prefix := range []string{ConversationsPrefix, GroupsPrefix} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix), true
		}
	}
	return "", false
}

// Store persists opaque snapshot values under string keys. Values are
// JSON-encoded arrays written by the conversation service; the store does not
// interpret them.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
