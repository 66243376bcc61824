// Package chat defines the data model shared by the chat client packages.
//
// # Types
//
//   - Conversation: a direct-message thread with one peer
//   - GroupConversation: a group thread keyed by group id
//   - Message: a direct or group message
//   - UserRef: a sender/recipient reference (bare id, embedded partial record,
//     or embedded full record)
//   - UserDisplay: the normalized profile shown in the UI
//
// # Normalization
//
// Wire records (RawUser, ConversationRecord, GroupRecord) are turned into
// UI-ready values by their Normalize/Display methods. A UserDisplay never has
// an empty field: the name falls back to first/last name and then to
// PlaceholderName, the image to a generated avatar URL, and the status to
// DefaultStatus.
package chat
