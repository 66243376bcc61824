// ABOUTME: Engine.IO v4 and Socket.IO v5 text framing over a websocket
// ABOUTME: Encodes event packets and decodes open, ping, close and event frames

package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Engine.IO packet types.
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
	eioUpgrade byte = '5'
	eioNoop    byte = '6'
)

// Socket.IO packet types carried inside an Engine.IO message.
const (
	sioConnect      byte = '0'
	sioDisconnect   byte = '1'
	sioEvent        byte = '2'
	sioAck          byte = '3'
	sioConnectError byte = '4'
)

const defaultSocketPath = "/socket.io/"

var errMalformedPacket = errors.New("malformed packet")

// openPacket is the Engine.IO handshake payload.
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // milliseconds
	PingTimeout  int    `json:"pingTimeout"`  // milliseconds
	MaxPayload   int    `json:"maxPayload"`
}

// liveness is how long the connection may stay silent before it is dead:
// the server pings every interval and allows timeout for the pong.
func (o openPacket) liveness() time.Duration {
	interval := time.Duration(o.PingInterval) * time.Millisecond
	timeout := time.Duration(o.PingTimeout) * time.Millisecond
	if interval <= 0 {
		interval = 25 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return interval + timeout
}

// packet is one decoded frame.
type packet struct {
	eio       byte
	sio       byte // set when eio == eioMessage
	namespace string
	ackID     string
	event     string
	args      []json.RawMessage
	data      json.RawMessage // open payload, connect payload or connect error
}

func parseOpen(frame []byte) (openPacket, error) {
	var open openPacket
	if len(frame) == 0 || frame[0] != eioOpen {
		return open, fmt.Errorf("expected open packet, got %q", truncate(frame))
	}
	if err := json.Unmarshal(frame[1:], &open); err != nil {
		return open, fmt.Errorf("decoding open packet: %w", err)
	}
	return open, nil
}

// decodePacket parses a text frame.
func decodePacket(frame []byte) (packet, error) {
	if len(frame) == 0 {
		return packet{}, errMalformedPacket
	}

	p := packet{eio: frame[0]}
	if p.eio != eioMessage {
		if len(frame) > 1 {
			p.data = json.RawMessage(frame[1:])
		}
		return p, nil
	}

	rest := frame[1:]
	if len(rest) == 0 {
		return packet{}, fmt.Errorf("%w: empty message", errMalformedPacket)
	}
	p.sio = rest[0]
	rest = rest[1:]

	// Optional namespace terminated by a comma.
	if len(rest) > 0 && rest[0] == '/' {
		comma := bytes.IndexByte(rest, ',')
		if comma < 0 {
			p.namespace = string(rest)
			rest = nil
		} else {
			p.namespace = string(rest[:comma])
			rest = rest[comma+1:]
		}
	}

	// Optional ack id.
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.ackID = string(rest[:i])
	rest = rest[i:]

	switch p.sio {
	case sioEvent, sioAck:
		if p.sio == sioAck {
			if len(rest) > 0 {
				p.data = json.RawMessage(rest)
			}
			return p, nil
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(rest, &parts); err != nil || len(parts) == 0 {
			return packet{}, fmt.Errorf("%w: event body %q", errMalformedPacket, truncate(rest))
		}
		if err := json.Unmarshal(parts[0], &p.event); err != nil {
			return packet{}, fmt.Errorf("%w: event name", errMalformedPacket)
		}
		p.args = parts[1:]
	default:
		if len(rest) > 0 {
			p.data = json.RawMessage(rest)
		}
	}
	return p, nil
}

// encodeEvent frames an event for the default namespace.
func encodeEvent(name string, args ...any) ([]byte, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)

	body, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}

	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, eioMessage, sioEvent)
	return append(frame, body...), nil
}

func connectFrame() []byte {
	return []byte{eioMessage, sioConnect}
}

func pongFrame() []byte {
	return []byte{eioPong}
}

// socketURL turns the server root into the websocket endpoint.
func socketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing socket url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}

	if path == "" {
		path = defaultSocketPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
