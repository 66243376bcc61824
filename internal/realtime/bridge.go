// ABOUTME: Bridge owns the single Socket.IO connection of a chat session
// ABOUTME: Reconnects with backoff, queues emits while offline and fans inbound events out to subscribers

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lavoro/lavoro-chat/internal/dedupe"
)

const (
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
	DefaultQueueSize        = 256
	DefaultDedupeTTL        = 10 * time.Minute

	dedupeMaxSize    = 4096
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	readLimit        = 1 << 20
)

var (
	// ErrClosed is returned by operations on a closed bridge.
	ErrClosed = errors.New("realtime bridge closed")

	// ErrQueueFull is returned when an emit cannot be queued while offline.
	ErrQueueFull = errors.New("realtime send queue full")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("realtime bridge already started")

	errServerClosed     = errors.New("server closed the connection")
	errServerDisconnect = errors.New("server disconnected the socket")
)

// TokenSource supplies the bearer credential sent on the websocket handshake.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a Bridge.
type Options struct {
	URL              string // server root, e.g. http://localhost:3000
	Path             string // defaults to /socket.io/
	Header           http.Header
	Tokens           TokenSource
	HTTPClient       *http.Client
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	QueueSize        int
	DedupeTTL        time.Duration
}

// Accepted is returned by emitters. The server's verdict arrives later as a
// *_sent or message_error event.
type Accepted struct {
	ClientID string
	Queued   bool // held until the connection is back
}

// Bridge is the session's real-time connection.
type Bridge struct {
	opts    Options
	hub     *Hub
	pending *Pending
	seen    *dedupe.Window
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	userID  string
	queue   [][]byte
	started bool
	closed  bool
	cancel  context.CancelFunc

	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Bridge. Zero options take the defaults; Start connects it.
func New(opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = DefaultReconnectInitial
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = DefaultReconnectMax
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = DefaultDedupeTTL
	}

	return &Bridge{
		opts:    opts,
		hub:     NewHub(logger),
		pending: NewPending(),
		seen:    dedupe.NewWindow(opts.DedupeTTL, dedupeMaxSize),
		logger:  logger.With("component", "realtime"),
		now:     time.Now,
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// Start connects in the background and keeps reconnecting until ctx is
// cancelled or Close is called.
func (b *Bridge) Start(ctx context.Context) error {
	if _, err := socketURL(b.opts.URL, b.opts.Path); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true

	go b.run(ctx)
	return nil
}

// Ready is closed once the first session is established.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Connected reports whether a session is currently up.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Close stops reconnecting, closes the connection and ends every subscription.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel, started := b.cancel, b.started
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-b.done
	}
	b.hub.Close()

	b.logger.Debug("bridge closed")
	return nil
}

func (b *Bridge) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.ReconnectInitial
	bo.MaxInterval = b.opts.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)

	bo := b.newBackOff()
	for {
		err := b.session(ctx, bo)
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		b.logger.Warn("socket session ended, reconnecting",
			"error", err,
			"retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to disconnect.
func (b *Bridge) session(ctx context.Context, bo backoff.BackOff) error {
	wsURL, err := socketURL(b.opts.URL, b.opts.Path)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPClient: b.opts.HTTPClient,
		HTTPHeader: b.header(),
	})
	if err != nil {
		return fmt.Errorf("dialing socket: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	open, err := b.handshake(dialCtx, conn)
	if err != nil {
		return err
	}
	bo.Reset()

	b.logger.Info("socket connected", "sid", open.SID)
	b.attach(conn)
	b.hub.Publish(Event{Class: ClassConnected, ReceivedAt: b.now()})
	defer func() {
		b.detach()
		b.hub.Publish(Event{Class: ClassDisconnected, ReceivedAt: b.now()})
	}()

	err = b.readLoop(ctx, conn, open.liveness())
	if ctx.Err() != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	return err
}

func (b *Bridge) header() http.Header {
	h := make(http.Header)
	for k, v := range b.opts.Header {
		h[k] = append([]string(nil), v...)
	}
	if b.opts.Tokens != nil {
		if token, err := b.opts.Tokens.Token(); err == nil && token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

// handshake reads the Engine.IO open packet and completes the Socket.IO connect.
func (b *Bridge) handshake(ctx context.Context, conn *websocket.Conn) (openPacket, error) {
	_, frame, err := conn.Read(ctx)
	if err != nil {
		return openPacket{}, fmt.Errorf("reading open packet: %w", err)
	}
	open, err := parseOpen(frame)
	if err != nil {
		return openPacket{}, err
	}

	if err := conn.Write(ctx, websocket.MessageText, connectFrame()); err != nil {
		return openPacket{}, fmt.Errorf("sending connect: %w", err)
	}

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return openPacket{}, fmt.Errorf("awaiting connect: %w", err)
		}
		p, err := decodePacket(frame)
		if err != nil {
			return openPacket{}, err
		}

		switch {
		case p.eio == eioPing:
			if err := conn.Write(ctx, websocket.MessageText, pongFrame()); err != nil {
				return openPacket{}, fmt.Errorf("sending pong: %w", err)
			}
		case p.eio == eioClose:
			return openPacket{}, errServerClosed
		case p.eio == eioMessage && p.sio == sioConnect:
			return open, nil
		case p.eio == eioMessage && p.sio == sioConnectError:
			return openPacket{}, fmt.Errorf("socket connect rejected: %s", p.data)
		}
	}
}

// attach makes conn the live connection, identifies the user again and
// flushes what was queued while offline.
func (b *Bridge) attach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conn = conn

	if b.userID != "" {
		if err := b.writeUserConnectedLocked(); err != nil {
			b.logger.Warn("identifying user failed", "user_id", b.userID, "error", err)
		}
	}

	flushed := 0
	for len(b.queue) > 0 {
		if err := b.writeLocked(b.queue[0]); err != nil {
			b.logger.Warn("flushing queued packets stopped", "remaining", len(b.queue), "error", err)
			break
		}
		b.queue = b.queue[1:]
		flushed++
	}
	if flushed > 0 {
		b.logger.Debug("flushed queued packets", "count", flushed)
	}

	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bridge) detach() {
	b.mu.Lock()
	b.conn = nil
	b.mu.Unlock()
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, liveness time.Duration) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, liveness)
		typ, frame, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("reading socket: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		p, err := decodePacket(frame)
		if err != nil {
			b.logger.Warn("ignoring malformed packet", "error", err)
			continue
		}

		switch p.eio {
		case eioPing:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, pongFrame())
			cancel()
			if err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}
		case eioClose:
			return errServerClosed
		case eioMessage:
			switch p.sio {
			case sioEvent:
				b.dispatch(p)
			case sioDisconnect:
				return errServerDisconnect
			case sioConnectError:
				return fmt.Errorf("socket connect rejected: %s", p.data)
			}
		}
	}
}

// dispatch publishes one inbound event. Running on the read loop keeps
// delivery within a class in arrival order.
func (b *Bridge) dispatch(p packet) {
	class := EventClass(p.event)
	var payload json.RawMessage
	if len(p.args) > 0 {
		payload = p.args[0]
	}

	if id := messageID(class, payload); id != "" && b.seen.Seen(string(class)+":"+id) {
		b.logger.Debug("dropped duplicate event", "class", class, "message_id", id)
		return
	}

	ev := Event{Class: class, Payload: payload, ReceivedAt: b.now()}

	var (
		resolved Outgoing
		ok       bool
	)
	switch class {
	case ClassMessageSent:
		resolved, ok = b.pending.Resolve(KindDirect, clientID(payload))
	case ClassGroupMessageSent:
		resolved, ok = b.pending.Resolve(KindGroup, clientID(payload))
	case ClassMessageError:
		resolved, ok = b.pending.ResolveOldest()
	}
	if ok {
		ev.Optimistic = &resolved
	}

	b.hub.Publish(ev)
}

// Subscribe registers for inbound events of class.
func (b *Bridge) Subscribe(ctx context.Context, class EventClass) (<-chan Event, string) {
	return b.hub.Subscribe(ctx, class)
}

// Unsubscribe ends one subscription.
func (b *Bridge) Unsubscribe(class EventClass, subID string) {
	b.hub.Unsubscribe(class, subID)
}

// UnsubscribeAll ends every subscription to class.
func (b *Bridge) UnsubscribeAll(class EventClass) {
	b.hub.UnsubscribeAll(class)
}

// OnNewMessage subscribes to incoming direct messages.
func (b *Bridge) OnNewMessage(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassNewMessage)
}

// OnMessageSent subscribes to direct message acknowledgements.
func (b *Bridge) OnMessageSent(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassMessageSent)
}

// OnNewGroupMessage subscribes to incoming group messages.
func (b *Bridge) OnNewGroupMessage(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassNewGroupMessage)
}

// OnGroupMessageSent subscribes to group message acknowledgements.
func (b *Bridge) OnGroupMessageSent(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassGroupMessageSent)
}

// OnUserTyping subscribes to typing indicators.
func (b *Bridge) OnUserTyping(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassUserTyping)
}

// OnUserStopTyping subscribes to stop-typing indicators.
func (b *Bridge) OnUserStopTyping(ctx context.Context) (<-chan Event, string) {
	return b.Subscribe(ctx, ClassUserStopTyping)
}

// ConnectSocket identifies the session as userID. The id is remembered and
// sent again after every reconnect.
func (b *Bridge) ConnectSocket(userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.userID = userID

	if b.conn == nil {
		return nil
	}
	if err := b.writeUserConnectedLocked(); err != nil {
		b.logger.Warn("identifying user failed, will retry on reconnect", "user_id", userID, "error", err)
	}
	return nil
}

// EmitPrivateMessage sends a direct message without waiting for the server.
// A missing ClientID is generated.
func (b *Bridge) EmitPrivateMessage(msg PrivateMessage) (Accepted, error) {
	if msg.ClientID == "" {
		msg.ClientID = uuid.New().String()
	}
	return b.emitTracked(emitPrivateMessage, msg, Outgoing{
		ClientID: msg.ClientID,
		Kind:     KindDirect,
		PeerID:   msg.ReceiverID,
		Body:     msg.Message,
	})
}

// EmitGroupMessage sends a group message without waiting for the server.
func (b *Bridge) EmitGroupMessage(msg GroupMessage) (Accepted, error) {
	if msg.ClientID == "" {
		msg.ClientID = uuid.New().String()
	}
	return b.emitTracked(emitGroupMessage, msg, Outgoing{
		ClientID: msg.ClientID,
		Kind:     KindGroup,
		PeerID:   msg.GroupID,
		Body:     msg.Message,
	})
}

// EmitTyping tells receiverID that senderID is typing.
func (b *Bridge) EmitTyping(senderID, receiverID string) (Accepted, error) {
	queued, err := b.emit(emitTyping, TypingNotice{SenderID: senderID, ReceiverID: receiverID})
	return Accepted{Queued: queued}, err
}

// EmitStopTyping tells receiverID that senderID stopped typing.
func (b *Bridge) EmitStopTyping(senderID, receiverID string) (Accepted, error) {
	queued, err := b.emit(emitStopTyping, TypingNotice{SenderID: senderID, ReceiverID: receiverID})
	return Accepted{Queued: queued}, err
}

// EmitMessageRead marks a direct message as read by readerID.
func (b *Bridge) EmitMessageRead(messageID, readerID string) (Accepted, error) {
	queued, err := b.emit(emitMessageRead, ReadNotice{MessageID: messageID, ReaderID: readerID})
	return Accepted{Queued: queued}, err
}

// EmitGroupMessageRead marks a group message as read by readerID.
func (b *Bridge) EmitGroupMessageRead(messageID, readerID string) (Accepted, error) {
	queued, err := b.emit(emitGroupMessageRead, ReadNotice{MessageID: messageID, ReaderID: readerID})
	return Accepted{Queued: queued}, err
}

// PendingCount returns the number of sends awaiting acknowledgement.
func (b *Bridge) PendingCount() int {
	return b.pending.Len()
}

// QueueLen returns the number of packets held while offline.
func (b *Bridge) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bridge) emitTracked(name string, payload any, o Outgoing) (Accepted, error) {
	o.EmittedAt = b.now()
	b.pending.Add(o)

	queued, err := b.emit(name, payload)
	if err != nil {
		b.pending.Resolve(o.Kind, o.ClientID)
		return Accepted{}, err
	}
	return Accepted{ClientID: o.ClientID, Queued: queued}, nil
}

// emit writes an event now, or queues it when there is no live connection.
func (b *Bridge) emit(name string, payload any) (bool, error) {
	frame, err := encodeEvent(name, payload)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrClosed
	}
	if b.conn != nil {
		err := b.writeLocked(frame)
		if err == nil {
			return false, nil
		}
		b.logger.Warn("emit failed, queueing", "event", name, "error", err)
	}

	if len(b.queue) >= b.opts.QueueSize {
		return false, ErrQueueFull
	}
	b.queue = append(b.queue, frame)
	return true, nil
}

func (b *Bridge) writeUserConnectedLocked() error {
	frame, err := encodeEvent(emitUserConnected, b.userID)
	if err != nil {
		return err
	}
	return b.writeLocked(frame)
}

// writeLocked must be called with mu held and a live connection.
func (b *Bridge) writeLocked(frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.conn.Write(ctx, websocket.MessageText, frame)
}
