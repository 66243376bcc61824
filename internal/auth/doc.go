// Package auth supplies the bearer credential used by the chat client.
//
// # Token Sources
//
// A Source returns the token sent as "Authorization: Bearer <token>" on REST
// requests and on the websocket handshake:
//
//   - StaticToken: a token given directly (config or flag)
//   - FileToken: a file read on every call
//   - EnvToken: an environment variable
//   - Chain: the first source that has a token
//
// DefaultSource chains the configured token and token file with LAVORO_TOKEN
// and $XDG_CONFIG_HOME/lavoro/token.
//
// # Current User
//
// SubjectFromToken reads the user id from the token claims without checking
// the signature, which only the server can do.
package auth
