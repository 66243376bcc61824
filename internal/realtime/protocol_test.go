// ABOUTME: Tests for Engine.IO / Socket.IO frame encoding and decoding
// ABOUTME: Also covers pending-ack matching, hub delivery and event payload decoders

package realtime

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		eio       byte
		sio       byte
		namespace string
		ackID     string
		event     string
		args      int
	}{
		{name: "ping", frame: "2", eio: eioPing},
		{name: "close", frame: "1", eio: eioClose},
		{name: "connect ack", frame: `40{"sid":"x"}`, eio: eioMessage, sio: sioConnect},
		{name: "event", frame: `42["new_message",{"a":1}]`, eio: eioMessage, sio: sioEvent, event: "new_message", args: 1},
		{name: "event no args", frame: `42["ping_me"]`, eio: eioMessage, sio: sioEvent, event: "ping_me"},
		{name: "namespaced", frame: `42/chat,["typing",{}]`, eio: eioMessage, sio: sioEvent, namespace: "/chat", event: "typing", args: 1},
		{name: "with ack id", frame: `4212["x",1,2]`, eio: eioMessage, sio: sioEvent, ackID: "12", event: "x", args: 2},
		{name: "disconnect", frame: "41", eio: eioMessage, sio: sioDisconnect},
		{name: "connect error", frame: `44{"message":"unauthorized"}`, eio: eioMessage, sio: sioConnectError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodePacket([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.eio, p.eio)
			assert.Equal(t, tt.sio, p.sio)
			assert.Equal(t, tt.namespace, p.namespace)
			assert.Equal(t, tt.ackID, p.ackID)
			assert.Equal(t, tt.event, p.event)
			assert.Len(t, p.args, tt.args)
		})
	}
}

func TestDecodePacket_Malformed(t *testing.T) {
	for _, frame := range []string{"", "4", `42{"not":"array"}`, `42[]`, `42[5]`} {
		_, err := decodePacket([]byte(frame))
		assert.Error(t, err, "frame %q", frame)
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent("typing", TypingNotice{SenderID: "u1", ReceiverID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, `42["typing",{"sender_id":"u1","receiver_id":"u2"}]`, string(frame))

	p, err := decodePacket(frame)
	require.NoError(t, err)
	assert.Equal(t, "typing", p.event)
}

func TestParseOpen(t *testing.T) {
	open, err := parseOpen([]byte(`0{"sid":"abc","pingInterval":1000,"pingTimeout":500}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", open.SID)
	assert.Equal(t, 1500*time.Millisecond, open.liveness())

	_, err = parseOpen([]byte(`40`))
	assert.Error(t, err)

	assert.Equal(t, 45*time.Second, openPacket{}.liveness())
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://localhost:3000", "", "ws://localhost:3000/socket.io/?EIO=4&transport=websocket"},
		{"https://chat.example.com/", "", "wss://chat.example.com/socket.io/?EIO=4&transport=websocket"},
		{"https://example.com/api", "/rt", "wss://example.com/api/rt/?EIO=4&transport=websocket"},
		{"ws://127.0.0.1:9", "/socket.io/", "ws://127.0.0.1:9/socket.io/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := socketURL(tt.base, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := socketURL("ftp://example.com", "")
	assert.Error(t, err)
}

func TestPending_ClientIDThenFIFO(t *testing.T) {
	p := NewPending()
	p.Add(Outgoing{ClientID: "a", Kind: KindDirect})
	p.Add(Outgoing{ClientID: "g", Kind: KindGroup})
	p.Add(Outgoing{ClientID: "b", Kind: KindDirect})
	p.Add(Outgoing{ClientID: "b", Kind: KindDirect}) // duplicate ignored

	o, ok := p.Resolve(KindDirect, "b")
	require.True(t, ok)
	assert.Equal(t, "b", o.ClientID)

	o, ok = p.Resolve(KindDirect, "unknown")
	require.True(t, ok)
	assert.Equal(t, "a", o.ClientID)

	_, ok = p.Resolve(KindDirect, "")
	assert.False(t, ok)

	o, ok = p.ResolveOldest()
	require.True(t, ok)
	assert.Equal(t, "g", o.ClientID)
	assert.Equal(t, 0, p.Len())
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch, subID := h.Subscribe(t.Context(), ClassUserTyping)
	other, _ := h.Subscribe(t.Context(), ClassNewMessage)
	assert.Equal(t, 1, h.Subscribers(ClassUserTyping))

	h.Publish(Event{Class: ClassUserTyping, Payload: json.RawMessage(`{"sender_id":"u1"}`)})

	ev := <-ch
	assert.Equal(t, ClassUserTyping, ev.Class)
	assert.Empty(t, other)

	h.Unsubscribe(ClassUserTyping, subID)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers(ClassUserTyping))
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ch, _ := h.Subscribe(t.Context(), ClassNewMessage)
	for range subscriberBufferSize + 10 {
		h.Publish(Event{Class: ClassNewMessage})
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := h.Subscribe(ctx, ClassNewMessage)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not cleaned up")
	}
}

func TestHub_UnsubscribeAllAndClose(t *testing.T) {
	h := NewHub(nil)

	a, _ := h.Subscribe(t.Context(), ClassNewMessage)
	b, _ := h.Subscribe(t.Context(), ClassNewMessage)
	h.UnsubscribeAll(ClassNewMessage)
	_, okA := <-a
	_, okB := <-b
	assert.False(t, okA)
	assert.False(t, okB)

	h.Close()
	late, _ := h.Subscribe(t.Context(), ClassNewMessage)
	_, ok := <-late
	assert.False(t, ok)
}

func TestHub_ManualUnsubscribeReleasesContextHook(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	before := runtime.NumGoroutine()
	for range 100 {
		ch, id := h.Subscribe(context.Background(), ClassNewMessage)
		h.Unsubscribe(ClassNewMessage, id)
		_, ok := <-ch
		require.False(t, ok)
	}
	for range 50 {
		h.Subscribe(context.Background(), ClassUserTyping)
	}
	h.UnsubscribeAll(ClassUserTyping)

	assert.Zero(t, h.Subscribers(ClassNewMessage))
	assert.Zero(t, h.Subscribers(ClassUserTyping))
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, time.Second, 10*time.Millisecond, "subscriptions left goroutines behind")
}

func TestHub_SubscribeWithDoneContext(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	ch, _ := h.Subscribe(ctx, ClassNewMessage)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription on a done context stayed open")
	}
}

func TestIncomingMessage_ChatMessage(t *testing.T) {
	ev := Event{
		Class:   ClassNewGroupMessage,
		Payload: json.RawMessage(`{"message":{"_id":"m1","sender_id":"u2","message":"hi"},"sender":{"_id":"u2","name":"Bob Ray","profileImage":"/b.png"},"group":{"_id":"g1","name":"Team"}}`),
	}

	in, err := ev.IncomingMessage()
	require.NoError(t, err)

	msg := in.ChatMessage()
	assert.Equal(t, "g1", msg.GroupID)
	require.NotNil(t, msg.SenderDisplay)
	assert.Equal(t, "Bob Ray", msg.SenderDisplay.Name)
	assert.Equal(t, "/b.png", msg.SenderDisplay.ProfileImageURL)

	withFirst := IncomingMessage{
		Message: chat.Message{ID: "m2", Sender: chat.IDRef("u3")},
		Sender:  &chat.RawUser{ID: "u3", FirstName: "Cy"},
	}.ChatMessage()
	assert.Equal(t, chat.RefEmbeddedFull, withFirst.Sender.Kind)
}

func TestEvent_DecodeWrongClass(t *testing.T) {
	ev := Event{Class: ClassUserTyping, Payload: json.RawMessage(`{}`)}
	_, err := ev.IncomingMessage()
	assert.Error(t, err)

	deleted := Event{Class: ClassMessageDeleted, Payload: json.RawMessage(`"m9"`)}
	id, err := deleted.DeletedMessageID()
	require.NoError(t, err)
	assert.Equal(t, "m9", id)
}

func TestMessageIDAndClientID(t *testing.T) {
	assert.Equal(t, "m1", messageID(ClassNewMessage, json.RawMessage(`{"message":{"_id":"m1"}}`)))
	assert.Equal(t, "s1", messageID(ClassMessageSent, json.RawMessage(`{"_id":"s1"}`)))
	assert.Empty(t, messageID(ClassUserTyping, json.RawMessage(`{"_id":"x"}`)))
	assert.Equal(t, "c1", clientID(json.RawMessage(`{"client_id":"c1"}`)))
	assert.Empty(t, clientID(json.RawMessage(`"bare"`)))
}
