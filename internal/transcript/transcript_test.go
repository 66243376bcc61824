// ABOUTME: Tests for Markdown and HTML transcript rendering
// ABOUTME: Checks day grouping, sender fallback, attachments and escaping of user text

package transcript

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

func sample() Transcript {
	day1 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return Transcript{
		Title: "Conversation avec Bob Ray",
		Messages: []chat.Message{
			{
				ID:            "m1",
				Sender:        chat.IDRef("u2"),
				Body:          "salut\nça va ?",
				SentAt:        day1,
				SenderDisplay: &chat.UserDisplay{ID: "u2", Name: "Bob Ray"},
			},
			{
				ID:         "m2",
				Sender:     chat.IDRef("u1"),
				Body:       "voir *le* plan",
				SentAt:     day1.Add(5 * time.Minute),
				Attachment: &chat.AttachmentRef{URL: "https://cdn.example.com/plan.pdf", Type: chat.AttachmentPDF},
			},
			{
				ID:         "m3",
				Body:       "",
				SentAt:     day1.Add(24 * time.Hour),
				Attachment: &chat.AttachmentRef{URL: "https://cdn.example.com/p.png", Type: chat.AttachmentImage},
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md, err := sample().Markdown()
	require.NoError(t, err)

	assert.Contains(t, md, "# Conversation avec Bob Ray\n")
	assert.Contains(t, md, "## 2026-03-01\n")
	assert.Contains(t, md, "## 2026-03-02\n")
	assert.Contains(t, md, "**Bob Ray** 09:30\n> salut\n> ça va ?\n")
	// No display yet: fall back to the raw sender id, then the placeholder.
	assert.Contains(t, md, "**u1** 09:35\n")
	assert.Contains(t, md, `> voir \*le\* plan`)
	assert.Contains(t, md, "[pdf](<https://cdn.example.com/plan.pdf>)")
	assert.Contains(t, md, "**"+chat.UnknownUserName+"** 09:30\n")
	assert.Contains(t, md, "![image](<https://cdn.example.com/p.png>)")
}

func TestMarkdown_Location(t *testing.T) {
	tr := sample()
	tr.Location = time.FixedZone("UTC+2", 2*60*60)

	md, err := tr.Markdown()
	require.NoError(t, err)
	assert.Contains(t, md, "**Bob Ray** 11:30\n")
}

func TestMarkdown_Empty(t *testing.T) {
	md, err := Transcript{Title: "Vide"}.Markdown()
	require.NoError(t, err)
	assert.Contains(t, md, "_Aucun message._")
}

func TestWriteHTML(t *testing.T) {
	tr := sample()
	tr.Messages[0].Body = "<script>alert(1)</script> **gras**"

	var buf bytes.Buffer
	require.NoError(t, tr.WriteHTML(&buf))
	out := buf.String()

	assert.Contains(t, out, "<h1>Conversation avec Bob Ray</h1>")
	assert.Contains(t, out, "<blockquote>")
	assert.Contains(t, out, `<a href="https://cdn.example.com/plan.pdf">pdf</a>`)
	assert.Contains(t, out, `<img src="https://cdn.example.com/p.png" alt="image">`)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<strong>gras</strong>")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML([]byte("visit https://lavoro.example.com"), &buf))
	assert.Contains(t, buf.String(), `<a href="https://lavoro.example.com">`)
}
