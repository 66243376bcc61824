// Package realtime is the chat session's Socket.IO connection.
//
// A Bridge dials the server's Engine.IO v4 websocket endpoint, completes the
// Socket.IO handshake, answers pings and fans inbound events out through a
// Hub to per-class subscribers. Delivery within a class keeps arrival order.
//
// Emitters never wait for the server. Messages carry a client id and are
// tracked in Pending until a *_sent acknowledgement or message_error resolves
// them; the resolved entry rides along on the event as Event.Optimistic.
// While offline, emits are queued (bounded) and flushed after reconnect, and
// the user id given to ConnectSocket is announced again on every session.
//
// Reconnects use exponential backoff with no overall deadline. Repeated
// message events with the same id inside the dedupe window are dropped.
package realtime
