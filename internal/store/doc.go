// Package store persists the chat client's local snapshots.
//
// # Key families
//
// Two families of keys are written, each holding a JSON-encoded array:
//
//   - chat_conversations_{userId}: the user's direct-message conversations
//   - chat_groups_{userId}: the user's group conversations
//
// The conversation service is the only writer. Snapshots are a warm cache for
// fallback display, not a source of truth; readers treat a missing or corrupt
// value as "no data".
//
// # Backends
//
//   - SQLiteStore: one row per key in a WAL-mode SQLite file (modernc.org/sqlite)
//   - MemoryStore: process-lifetime map, used for tests and ephemeral sessions
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/lavoro/chat.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.Put(ctx, store.ConversationsKey(userID), data)
package store
