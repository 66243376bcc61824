// Package conversations builds the conversation, group and history lists the
// chat UI renders.
//
// Reads never fail: a transport error becomes a result with OK=false, an
// empty (non-nil) list and the error text. Successful list reads are persisted
// as per-user snapshots in a store.Store and served back by the *WithFallback
// variants when the network is unavailable. Writes (sends, deletes, group
// membership) return their errors to the caller.
//
// ApplyIncoming and ApplyIncomingGroup fold real-time messages into lists
// already on screen.
package conversations
