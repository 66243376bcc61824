// Package dedupe drops repeated keys seen within a time window. The realtime
// bridge uses it to discard inbound message events the server delivers more
// than once, for example after a reconnect.
package dedupe
