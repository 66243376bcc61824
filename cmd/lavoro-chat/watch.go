// ABOUTME: Real-time commands: stream socket events and send over the socket with ack tracking
// ABOUTME: Incoming messages are enriched and folded into the saved conversation and group lists

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lavoro/lavoro-chat/internal/chat"
	"github.com/lavoro/lavoro-chat/internal/conversations"
	"github.com/lavoro/lavoro-chat/internal/realtime"
)

// socketAckTimeout bounds how long a --socket send waits for the server.
const socketAckTimeout = 15 * time.Second

var watchClasses = []realtime.EventClass{
	realtime.ClassConnected,
	realtime.ClassDisconnected,
	realtime.ClassNewMessage,
	realtime.ClassMessageSent,
	realtime.ClassNewGroupMessage,
	realtime.ClassGroupMessageSent,
	realtime.ClassUserTyping,
	realtime.ClassUserStopTyping,
	realtime.ClassMessageError,
	realtime.ClassMessageReadReceipt,
	realtime.ClassGroupMessageReadReceipt,
	realtime.ClassMessageDeleted,
	realtime.ClassGroupMessageDeleted,
	realtime.ClassNewGroup,
	realtime.ClassAddedToGroup,
	realtime.ClassRemovedFromGroup,
}

// fanIn subscribes to every class and forwards events onto one channel until
// ctx is done.
func fanIn(ctx context.Context, b *realtime.Bridge, classes []realtime.EventClass) <-chan realtime.Event {
	out := make(chan realtime.Event, 64)
	for _, class := range classes {
		ch, _ := b.Subscribe(ctx, class)
		go func() {
			for ev := range ch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return out
}

// watcher keeps the session's lists current while events stream in.
type watcher struct {
	a        *app
	bridge   *realtime.Bridge
	w        io.Writer
	markRead bool

	convs  []chat.Conversation
	groups []chat.GroupConversation
}

func newWatchCmd(a *app) *cobra.Command {
	var markRead bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream real-time chat events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			bridge := a.newBridge()
			if err := bridge.Start(ctx); err != nil {
				return fmt.Errorf("starting socket: %w", err)
			}
			defer bridge.Close()

			if err := bridge.ConnectSocket(a.userID); err != nil {
				return err
			}

			// Seed from the server when reachable so unread counts start right.
			convs := a.svc.ConversationsWithFallback(ctx, a.userID)
			groups := a.svc.GroupsWithFallback(ctx, a.userID)

			wt := &watcher{
				a:        a,
				bridge:   bridge,
				w:        a.out,
				markRead: markRead,
				convs:    convs.Conversations,
				groups:   groups.Groups,
			}

			events := fanIn(ctx, bridge, watchClasses)
			mutedColor.Fprintf(a.out, "Watching as %s, Ctrl-C to stop\n", a.userID)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					wt.handle(ctx, ev)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "send read receipts for incoming direct messages")
	return cmd
}

func (wt *watcher) handle(ctx context.Context, ev realtime.Event) {
	if wt.a.jsonOut {
		_ = writeJSON(wt.w, map[string]any{"event": ev.Class, "payload": ev.Payload, "received_at": ev.ReceivedAt})
	}

	switch ev.Class {
	case realtime.ClassConnected:
		wt.status(okColor, "connected")
	case realtime.ClassDisconnected:
		wt.status(errColor, "disconnected, reconnecting")

	case realtime.ClassNewMessage:
		msg, ok := wt.incoming(ctx, ev)
		if !ok {
			return
		}
		wt.convs = conversations.ApplyIncoming(wt.a.userID, wt.convs, msg)
		wt.a.svc.PersistConversations(ctx, wt.a.userID, wt.convs)
		if wt.markRead && msg.SenderID() != wt.a.userID && msg.ID != "" {
			if _, err := wt.bridge.EmitMessageRead(msg.ID, wt.a.userID); err != nil {
				wt.a.logger.Warn("sending read receipt failed", "message_id", msg.ID, "error", err)
			}
		}

	case realtime.ClassNewGroupMessage:
		msg, ok := wt.incoming(ctx, ev)
		if !ok {
			return
		}
		var known bool
		wt.groups, known = conversations.ApplyIncomingGroup(wt.a.userID, wt.groups, msg)
		if known {
			wt.a.svc.PersistGroups(ctx, wt.a.userID, wt.groups)
		}

	case realtime.ClassMessageSent, realtime.ClassGroupMessageSent:
		msg, err := ev.SentMessage()
		if err != nil {
			wt.a.logger.Warn("bad acknowledgement payload", "class", ev.Class, "error", err)
			return
		}
		msg = wt.a.enricher.EnrichMessage(ctx, msg.Normalize(ev.ReceivedAt))
		if ev.Class == realtime.ClassMessageSent {
			wt.convs = conversations.ApplyIncoming(wt.a.userID, wt.convs, msg)
			wt.a.svc.PersistConversations(ctx, wt.a.userID, wt.convs)
		}
		if !wt.a.jsonOut {
			okColor.Fprint(wt.w, "✓ ")
			printMessage(wt.w, msg)
		}

	case realtime.ClassMessageError:
		me, err := ev.MessageError()
		if err != nil {
			return
		}
		wt.status(errColor, "send failed: "+me.Error)

	case realtime.ClassUserTyping, realtime.ClassUserStopTyping:
		t, err := ev.Typing()
		if err != nil {
			return
		}
		verb := "is typing"
		if ev.Class == realtime.ClassUserStopTyping {
			verb = "stopped typing"
		}
		wt.status(mutedColor, wt.name(ctx, t.SenderID)+" "+verb)

	case realtime.ClassMessageReadReceipt, realtime.ClassGroupMessageReadReceipt:
		r, err := ev.ReadReceipt()
		if err != nil {
			return
		}
		wt.status(mutedColor, fmt.Sprintf("%s read %s", wt.name(ctx, r.ReaderID), r.MessageID))

	case realtime.ClassMessageDeleted:
		id, err := ev.DeletedMessageID()
		if err != nil {
			return
		}
		wt.status(mutedColor, "message "+id+" deleted")
	case realtime.ClassGroupMessageDeleted:
		d, err := ev.GroupMessageDeleted()
		if err != nil {
			return
		}
		wt.status(mutedColor, fmt.Sprintf("message %s deleted in %s", d.MessageID, d.GroupID))

	case realtime.ClassNewGroup, realtime.ClassAddedToGroup, realtime.ClassRemovedFromGroup:
		rec, err := ev.Group()
		if err != nil {
			wt.a.logger.Warn("bad group payload", "class", ev.Class, "error", err)
			return
		}
		g := rec.Normalize(ev.ReceivedAt)
		if ev.Class == realtime.ClassRemovedFromGroup || !g.HasMember(wt.a.userID) {
			wt.groups = conversations.RemoveGroup(wt.groups, g.GroupID)
			wt.status(unreadColor, "removed from "+g.Name)
		} else {
			wt.groups = conversations.UpsertGroup(wt.groups, g)
			wt.status(okColor, "member of "+g.Name)
		}
		wt.a.svc.PersistGroups(ctx, wt.a.userID, wt.groups)
	}
}

// incoming decodes, enriches and prints a new message.
func (wt *watcher) incoming(ctx context.Context, ev realtime.Event) (chat.Message, bool) {
	in, err := ev.IncomingMessage()
	if err != nil {
		wt.a.logger.Warn("bad message payload", "class", ev.Class, "error", err)
		return chat.Message{}, false
	}
	msg := wt.a.enricher.EnrichMessage(ctx, in.ChatMessage().Normalize(ev.ReceivedAt))
	if !wt.a.jsonOut {
		printMessage(wt.w, msg)
	}
	return msg, true
}

func (wt *watcher) name(ctx context.Context, id string) string {
	d, err := wt.a.enricher.CachedUser(ctx, id)
	if err != nil {
		return id
	}
	return d.Name
}

func (wt *watcher) status(c *color.Color, text string) {
	if wt.a.jsonOut {
		return
	}
	c.Fprintf(wt.w, "%s %s\n", clock(time.Now()), text)
}

// sendOverSocket emits one message on a fresh connection and waits for the
// server to acknowledge or reject it.
func (a *app) sendOverSocket(ctx context.Context, peerID, groupID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, socketAckTimeout)
	defer cancel()

	bridge := a.newBridge()
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting socket: %w", err)
	}
	defer bridge.Close()
	if err := bridge.ConnectSocket(a.userID); err != nil {
		return err
	}

	ackClass := realtime.ClassMessageSent
	if groupID != "" {
		ackClass = realtime.ClassGroupMessageSent
	}
	acks, _ := bridge.Subscribe(ctx, ackClass)
	failures, _ := bridge.Subscribe(ctx, realtime.ClassMessageError)

	var (
		accepted realtime.Accepted
		err      error
	)
	if groupID != "" {
		accepted, err = bridge.EmitGroupMessage(realtime.GroupMessage{GroupID: groupID, SenderID: a.userID, Message: text})
	} else {
		accepted, err = bridge.EmitPrivateMessage(realtime.PrivateMessage{SenderID: a.userID, ReceiverID: peerID, Message: text})
	}
	if err != nil {
		return fmt.Errorf("emitting message: %w", err)
	}
	a.logger.Debug("message emitted", "client_id", accepted.ClientID, "queued", accepted.Queued)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no acknowledgement for %s: %w", accepted.ClientID, ctx.Err())
		case ev, ok := <-acks:
			if !ok {
				return errors.New("socket closed before acknowledgement")
			}
			if ev.Optimistic == nil || ev.Optimistic.ClientID != accepted.ClientID {
				continue
			}
			msg, err := ev.SentMessage()
			if err != nil {
				return err
			}
			msg = a.enricher.EnrichMessage(ctx, msg.Normalize(ev.ReceivedAt))
			return a.emit(msg, func(w io.Writer) { printMessage(w, msg) })
		case ev, ok := <-failures:
			if !ok {
				return errors.New("socket closed before acknowledgement")
			}
			if ev.Optimistic == nil || ev.Optimistic.ClientID != accepted.ClientID {
				continue
			}
			me, _ := ev.MessageError()
			return fmt.Errorf("server rejected message: %s", me.Error)
		}
	}
}
