// ABOUTME: Tests for the realtime bridge against a fake Socket.IO server
// ABOUTME: Covers identification, FIFO delivery, dedupe, offline queueing, ack matching and reconnects

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type serverConn struct {
	conn    *websocket.Conn
	inbound chan string
}

type fakeSocketServer struct {
	srv     *httptest.Server
	conns   chan *serverConn
	headers chan http.Header
}

func newFakeSocketServer(t *testing.T) *fakeSocketServer {
	t.Helper()

	f := &fakeSocketServer{
		conns:   make(chan *serverConn, 8),
		headers: make(chan http.Header, 8),
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/socket.io/") || r.URL.Query().Get("EIO") != "4" {
			http.NotFound(w, r)
			return
		}
		select {
		case f.headers <- r.Header.Clone():
		default:
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := context.Background()
		open := `0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
		if err := conn.Write(ctx, websocket.MessageText, []byte(open)); err != nil {
			return
		}
		_, frame, err := conn.Read(ctx)
		if err != nil || string(frame) != "40" {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(`40{"sid":"sio-1"}`)); err != nil {
			return
		}

		sc := &serverConn{conn: conn, inbound: make(chan string, 64)}
		f.conns <- sc

		for {
			_, frame, err := conn.Read(ctx)
			if err != nil {
				close(sc.inbound)
				return
			}
			sc.inbound <- string(frame)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSocketServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-f.conns:
		return sc
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (sc *serverConn) send(t *testing.T, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, sc.conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

// expectEvent returns the next event packet, skipping pongs.
func (sc *serverConn) expectEvent(t *testing.T) (string, json.RawMessage) {
	t.Helper()
	for {
		select {
		case frame, ok := <-sc.inbound:
			require.True(t, ok, "connection closed")
			if !strings.HasPrefix(frame, "42") {
				continue
			}
			p, err := decodePacket([]byte(frame))
			require.NoError(t, err)
			var payload json.RawMessage
			if len(p.args) > 0 {
				payload = p.args[0]
			}
			return p.event, payload
		case <-time.After(testTimeout):
			t.Fatal("timed out waiting for event")
			return "", nil
		}
	}
}

func (sc *serverConn) expectFrame(t *testing.T, want string) {
	t.Helper()
	for {
		select {
		case frame, ok := <-sc.inbound:
			require.True(t, ok, "connection closed")
			if frame == want {
				return
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for frame %q", want)
		}
	}
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newTestBridge(t *testing.T, f *fakeSocketServer) *Bridge {
	t.Helper()
	b := New(Options{
		URL:              f.srv.URL,
		Header:           http.Header{"My-Custom-Header": []string{"abcd"}},
		Tokens:           staticToken("tok"),
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { b.Close() })
	return b
}

func waitReady(t *testing.T, b *Bridge) {
	t.Helper()
	select {
	case <-b.Ready():
	case <-time.After(testTimeout):
		t.Fatal("bridge never became ready")
	}
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBridge_ConnectAndIdentify(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	require.NoError(t, b.ConnectSocket("u1"))
	require.NoError(t, b.Start(t.Context()))

	sc := f.accept(t)
	name, payload := sc.expectEvent(t)
	assert.Equal(t, "user_connected", name)
	assert.JSONEq(t, `"u1"`, string(payload))

	header := <-f.headers
	assert.Equal(t, "abcd", header.Get("My-Custom-Header"))
	assert.Equal(t, "Bearer tok", header.Get("Authorization"))

	waitReady(t, b)
	assert.True(t, b.Connected())
	assert.ErrorIs(t, b.Start(t.Context()), ErrAlreadyStarted)
}

func TestBridge_InboundFIFOAndDedupe(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	events, _ := b.OnNewMessage(t.Context())
	typing, _ := b.OnUserTyping(t.Context())
	require.NoError(t, b.Start(t.Context()))
	sc := f.accept(t)
	waitReady(t, b)

	for _, id := range []string{"m1", "m2", "m1", "m3"} {
		sc.send(t, `42["new_message",{"message":{"_id":"`+id+`","sender_id":"u2","message":"hi"},"sender":{"_id":"u2","name":"Bob"}}]`)
	}
	sc.send(t, `42["user_typing",{"sender_id":"u2"}]`)

	var got []string
	for range 3 {
		ev := receive(t, events)
		msg, err := ev.IncomingMessage()
		require.NoError(t, err)
		got = append(got, msg.Message.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, got)

	ev := receive(t, typing)
	notice, err := ev.Typing()
	require.NoError(t, err)
	assert.Equal(t, "u2", notice.SenderID)

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %s", extra.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridge_QueuesWhileOffline(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	accepted, err := b.EmitPrivateMessage(PrivateMessage{SenderID: "u1", ReceiverID: "u2", Message: "offline hello"})
	require.NoError(t, err)
	assert.True(t, accepted.Queued)
	assert.NotEmpty(t, accepted.ClientID)

	_, err = b.EmitTyping("u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.QueueLen())
	assert.Equal(t, 1, b.PendingCount())

	require.NoError(t, b.Start(t.Context()))
	sc := f.accept(t)

	name, payload := sc.expectEvent(t)
	assert.Equal(t, "private_message", name)
	var pm PrivateMessage
	require.NoError(t, json.Unmarshal(payload, &pm))
	assert.Equal(t, accepted.ClientID, pm.ClientID)
	assert.Equal(t, "offline hello", pm.Message)

	name, _ = sc.expectEvent(t)
	assert.Equal(t, "typing", name)
	assert.Equal(t, 0, b.QueueLen())
}

func TestBridge_QueueFull(t *testing.T) {
	b := New(Options{URL: "http://127.0.0.1:1", QueueSize: 1}, nil)
	defer b.Close()

	_, err := b.EmitStopTyping("u1", "u2")
	require.NoError(t, err)
	_, err = b.EmitStopTyping("u1", "u2")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestBridge_AckReconciliation(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	acks, _ := b.OnMessageSent(t.Context())
	groupAcks, _ := b.OnGroupMessageSent(t.Context())
	require.NoError(t, b.Start(t.Context()))
	sc := f.accept(t)
	waitReady(t, b)

	first, err := b.EmitPrivateMessage(PrivateMessage{SenderID: "u1", ReceiverID: "u2", Message: "a"})
	require.NoError(t, err)
	assert.False(t, first.Queued)
	second, err := b.EmitPrivateMessage(PrivateMessage{SenderID: "u1", ReceiverID: "u2", Message: "b"})
	require.NoError(t, err)
	group, err := b.EmitGroupMessage(GroupMessage{SenderID: "u1", GroupID: "g1", Message: "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, b.PendingCount())

	// Echoed client id resolves exactly that entry
	sc.send(t, `42["message_sent",{"_id":"s2","client_id":"`+second.ClientID+`","sender_id":"u1","message":"b"}]`)
	ev := receive(t, acks)
	require.NotNil(t, ev.Optimistic)
	assert.Equal(t, second.ClientID, ev.Optimistic.ClientID)

	// No client id falls back to the oldest of the same kind
	sc.send(t, `42["message_sent",{"_id":"s1","sender_id":"u1","message":"a"}]`)
	ev = receive(t, acks)
	require.NotNil(t, ev.Optimistic)
	assert.Equal(t, first.ClientID, ev.Optimistic.ClientID)
	sent, err := ev.SentMessage()
	require.NoError(t, err)
	assert.Equal(t, "s1", sent.ID)

	sc.send(t, `42["group_message_sent",{"_id":"s3","sender_id":"u1","group_id":"g1","message":"c"}]`)
	ev = receive(t, groupAcks)
	require.NotNil(t, ev.Optimistic)
	assert.Equal(t, group.ClientID, ev.Optimistic.ClientID)
	assert.Equal(t, KindGroup, ev.Optimistic.Kind)

	assert.Equal(t, 0, b.PendingCount())
}

func TestBridge_MessageErrorResolvesOldest(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	errs, _ := b.Subscribe(t.Context(), ClassMessageError)
	require.NoError(t, b.Start(t.Context()))
	sc := f.accept(t)
	waitReady(t, b)

	accepted, err := b.EmitPrivateMessage(PrivateMessage{SenderID: "u1", ReceiverID: "u2", Message: "x"})
	require.NoError(t, err)

	sc.send(t, `42["message_error",{"error":"Failed to send message"}]`)
	ev := receive(t, errs)
	msgErr, err := ev.MessageError()
	require.NoError(t, err)
	assert.Equal(t, "Failed to send message", msgErr.Error)
	require.NotNil(t, ev.Optimistic)
	assert.Equal(t, accepted.ClientID, ev.Optimistic.ClientID)
}

func TestBridge_PingPong(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	require.NoError(t, b.Start(t.Context()))
	sc := f.accept(t)

	sc.send(t, "2")
	sc.expectFrame(t, "3")
}

func TestBridge_ReconnectReidentifies(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	connected, _ := b.Subscribe(t.Context(), ClassConnected)
	disconnected, _ := b.Subscribe(t.Context(), ClassDisconnected)
	events, _ := b.OnNewMessage(t.Context())

	require.NoError(t, b.ConnectSocket("u1"))
	require.NoError(t, b.Start(t.Context()))

	first := f.accept(t)
	name, _ := first.expectEvent(t)
	assert.Equal(t, "user_connected", name)
	receive(t, connected)

	first.conn.CloseNow()
	receive(t, disconnected)

	second := f.accept(t)
	name, payload := second.expectEvent(t)
	assert.Equal(t, "user_connected", name)
	assert.JSONEq(t, `"u1"`, string(payload))
	receive(t, connected)

	// Subscriptions made before the drop keep receiving
	second.send(t, `42["new_message",{"message":{"_id":"after","sender_id":"u2","message":"back"}}]`)
	ev := receive(t, events)
	msg, err := ev.IncomingMessage()
	require.NoError(t, err)
	assert.Equal(t, "after", msg.Message.ID)
}

func TestBridge_ServerDisconnectTriggersReconnect(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	require.NoError(t, b.Start(t.Context()))
	first := f.accept(t)
	first.send(t, "41")

	second := f.accept(t)
	assert.NotNil(t, second)
}

func TestBridge_CloseEndsSubscriptions(t *testing.T) {
	f := newFakeSocketServer(t)
	b := newTestBridge(t, f)

	events, _ := b.OnNewMessage(t.Context())
	require.NoError(t, b.Start(t.Context()))
	f.accept(t)
	waitReady(t, b)

	require.NoError(t, b.Close())

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(testTimeout):
		t.Fatal("subscription not closed")
	}

	_, err := b.EmitTyping("u1", "u2")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.ConnectSocket("u1"), ErrClosed)
	assert.ErrorIs(t, b.Start(t.Context()), ErrClosed)
	assert.False(t, b.Connected())
}
