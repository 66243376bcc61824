// ABOUTME: Renders an enriched conversation history as Markdown or HTML for export
// ABOUTME: Messages are grouped by day and attachments become links or inline images

package transcript

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// Transcript is a titled, ordered list of messages.
type Transcript struct {
	Title    string
	Messages []chat.Message
	// Location controls how timestamps are printed. Nil means UTC.
	Location *time.Location
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// mdEscaper neutralizes characters that would change the meaning of a body
// or a name inside Markdown.
var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`,
)

// WriteMarkdown writes the transcript as Markdown.
func (t Transcript) WriteMarkdown(w io.Writer) error {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&b, "# %s\n", mdEscaper.Replace(t.Title))
	}
	if len(t.Messages) == 0 {
		b.WriteString("\n_Aucun message._\n")
	}

	day := ""
	for _, m := range t.Messages {
		sent := m.SentAt.In(loc)
		if d := sent.Format("2006-01-02"); d != day {
			day = d
			fmt.Fprintf(&b, "\n## %s\n", day)
		}

		fmt.Fprintf(&b, "\n**%s** %s\n", mdEscaper.Replace(senderName(m)), sent.Format("15:04"))
		if body := strings.TrimSpace(m.Body); body != "" {
			for _, line := range strings.Split(body, "\n") {
				fmt.Fprintf(&b, "> %s\n", mdEscaper.Replace(line))
			}
		}
		if m.Attachment != nil && m.Attachment.URL != "" {
			b.WriteString(attachmentLine(*m.Attachment))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Markdown returns the transcript as Markdown.
func (t Transcript) Markdown() (string, error) {
	var buf bytes.Buffer
	if err := t.WriteMarkdown(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML renders the transcript's Markdown as an HTML fragment. Raw HTML
// in message bodies is never passed through.
func (t Transcript) WriteHTML(w io.Writer) error {
	md, err := t.Markdown()
	if err != nil {
		return err
	}
	return RenderHTML([]byte(md), w)
}

// RenderHTML converts Markdown to HTML.
func RenderHTML(md []byte, w io.Writer) error {
	if err := markdown.Convert(md, w); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	return nil
}

func senderName(m chat.Message) string {
	if m.SenderDisplay != nil && m.SenderDisplay.Name != "" {
		return m.SenderDisplay.Name
	}
	if id := m.SenderID(); id != "" {
		return id
	}
	return chat.UnknownUserName
}

func attachmentLine(a chat.AttachmentRef) string {
	label := a.Type
	if label == "" {
		label = chat.AttachmentFile
	}
	if a.Type == chat.AttachmentImage {
		return fmt.Sprintf("\n![%s](<%s>)\n", label, a.URL)
	}
	return fmt.Sprintf("\n[%s](<%s>)\n", label, a.URL)
}
