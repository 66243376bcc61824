// ABOUTME: Terminal and JSON output for CLI results
// ABOUTME: Uses fatih/color for names, timestamps and unread markers

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

var (
	nameColor   = color.New(color.FgCyan, color.Bold)
	mutedColor  = color.New(color.FgHiBlack)
	unreadColor = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
)

const timeLayout = "2006-01-02 15:04"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints v as JSON when --json is set, otherwise calls text.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.jsonOut {
		return writeJSON(a.out, v)
	}
	text(a.out)
	return nil
}

func printConversations(w io.Writer, convs []chat.Conversation) {
	if len(convs) == 0 {
		mutedColor.Fprintln(w, "No conversations.")
		return
	}
	for _, c := range convs {
		nameColor.Fprint(w, c.PeerDisplay.Name)
		mutedColor.Fprintf(w, " (%s)", c.PeerUserID)
		if c.UnreadCount > 0 {
			unreadColor.Fprintf(w, " [%d unread]", c.UnreadCount)
		}
		fmt.Fprintln(w)
		printPreview(w, c.LastMessage)
	}
}

func printGroups(w io.Writer, groups []chat.GroupConversation) {
	if len(groups) == 0 {
		mutedColor.Fprintln(w, "No groups.")
		return
	}
	for _, g := range groups {
		nameColor.Fprint(w, g.Name)
		mutedColor.Fprintf(w, " (%s, %d members)", g.GroupID, len(g.MemberIDs))
		if g.UnreadCount > 0 {
			unreadColor.Fprintf(w, " [%d unread]", g.UnreadCount)
		}
		fmt.Fprintln(w)
		printPreview(w, g.LastMessage)
	}
}

func printPreview(w io.Writer, p chat.MessagePreview) {
	fmt.Fprintf(w, "    %s ", oneLine(p.Body))
	mutedColor.Fprintln(w, p.SentAt.Local().Format(timeLayout))
}

func printContacts(w io.Writer, contacts []chat.UserDisplay) {
	if len(contacts) == 0 {
		mutedColor.Fprintln(w, "No contacts.")
		return
	}
	for _, u := range contacts {
		nameColor.Fprint(w, u.Name)
		mutedColor.Fprintf(w, " (%s) %s\n", u.ID, u.Status)
	}
}

func printMessages(w io.Writer, msgs []chat.Message) {
	if len(msgs) == 0 {
		mutedColor.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m chat.Message) {
	mutedColor.Fprintf(w, "[%s] ", m.SentAt.Local().Format(timeLayout))
	nameColor.Fprint(w, senderName(m))
	fmt.Fprintf(w, ": %s", m.Body)
	if m.Attachment != nil && m.Attachment.URL != "" {
		mutedColor.Fprintf(w, " <%s %s>", m.Attachment.Type, m.Attachment.URL)
	}
	mutedColor.Fprintf(w, " (%s)\n", m.ID)
}

func senderName(m chat.Message) string {
	if m.SenderDisplay != nil {
		return m.SenderDisplay.Name
	}
	if id := m.SenderID(); id != "" {
		return id
	}
	return chat.UnknownUserName
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 72 {
		return string(r[:71]) + "…"
	}
	return s
}

func clock(t time.Time) string {
	return t.Local().Format("15:04:05")
}
