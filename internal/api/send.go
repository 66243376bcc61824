// ABOUTME: Message sending and group creation, including multipart attachment uploads
// ABOUTME: Enforces the attachment size limit and falls back to text-only sends on upload failure

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

// AttachmentPlaceholderText replaces an empty body when a message carries only a file.
const AttachmentPlaceholderText = "Pièce jointe"

// Attachment is a file to upload alongside a message or as a group avatar.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// AttachmentFromFile opens path and describes it as an Attachment. The caller
// closes the returned file once the send completes.
func AttachmentFromFile(path string) (*Attachment, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening attachment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat attachment: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Reader:      f,
	}, f, nil
}

func (a *Attachment) checkSize() error {
	if a.Size > MaxAttachmentSize {
		return &AttachmentTooLargeError{Name: a.Name, SizeBytes: a.Size}
	}
	return nil
}

// OutgoingMessage is a direct message to send.
type OutgoingMessage struct {
	ClientID   string `json:"client_id,omitempty"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

// OutgoingGroupMessage is a group message to send.
type OutgoingGroupMessage struct {
	ClientID string `json:"client_id,omitempty"`
	GroupID  string `json:"group_id"`
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
}

// SendMessage posts a direct message, uploading attachment when non-nil.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage, attachment *Attachment) (*chat.Message, error) {
	fields := []formField{
		{"sender_id", msg.SenderID},
		{"receiver_id", msg.ReceiverID},
	}
	if msg.ClientID != "" {
		fields = append(fields, formField{"client_id", msg.ClientID})
	}

	originalText := msg.Message
	if msg.Message == "" && attachment != nil {
		msg.Message = AttachmentPlaceholderText
	}

	sent, err := c.sendWithAttachment(ctx, chatPrefix+"/message", msg, msg.Message, originalText, fields, attachment)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	return sent, nil
}

// SendGroupMessage posts a group message, uploading attachment when non-nil.
func (c *Client) SendGroupMessage(ctx context.Context, msg OutgoingGroupMessage, attachment *Attachment) (*chat.Message, error) {
	fields := []formField{
		{"group_id", msg.GroupID},
		{"sender_id", msg.SenderID},
	}
	if msg.ClientID != "" {
		fields = append(fields, formField{"client_id", msg.ClientID})
	}

	originalText := msg.Message
	if msg.Message == "" && attachment != nil {
		msg.Message = AttachmentPlaceholderText
	}

	sent, err := c.sendWithAttachment(ctx, chatPrefix+"/group/message", msg, msg.Message, originalText, fields, attachment)
	if err != nil {
		return nil, fmt.Errorf("sending group message: %w", err)
	}
	return sent, nil
}

// sendWithAttachment posts body as JSON, or as multipart when attachment is
// set. A failed upload is retried as JSON only when the caller typed text.
func (c *Client) sendWithAttachment(ctx context.Context, path string, body any, text, originalText string, fields []formField, attachment *Attachment) (*chat.Message, error) {
	var sent chat.Message

	if attachment == nil {
		if err := c.doJSON(ctx, http.MethodPost, path, body, &sent); err != nil {
			return nil, err
		}
		return &sent, nil
	}

	if err := attachment.checkSize(); err != nil {
		return nil, err
	}

	fields = append(fields, formField{"message", text})
	uploadErr := c.doMultipart(ctx, path, fields, "attachment", attachment, &sent)
	if uploadErr == nil {
		return &sent, nil
	}

	if strings.TrimSpace(originalText) == "" {
		return nil, fmt.Errorf("uploading attachment: %w", uploadErr)
	}

	c.logger.Warn("attachment upload failed, sending text only",
		"path", path,
		"attachment", attachment.Name,
		"error", uploadErr)

	sent = chat.Message{}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// CreateGroup creates a group; avatar is uploaded as multipart when non-nil.
func (c *Client) CreateGroup(ctx context.Context, group NewGroup, avatar *Attachment) (*chat.GroupRecord, error) {
	var created chat.GroupRecord
	path := chatPrefix + "/group"

	if avatar == nil {
		if err := c.doJSON(ctx, http.MethodPost, path, group, &created); err != nil {
			return nil, fmt.Errorf("creating group: %w", err)
		}
		return &created, nil
	}

	if err := avatar.checkSize(); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	fields := []formField{
		{"name", group.Name},
		{"description", group.Description},
		{"creator", group.CreatorID},
	}
	for _, member := range group.MemberIDs {
		fields = append(fields, formField{"members", member})
	}

	if err := c.doMultipart(ctx, path, fields, "avatar", avatar, &created); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return &created, nil
}

type formField struct {
	name  string
	value string
}

// doMultipart encodes fields plus one file part and posts them with the upload timeout.
func (c *Client) doMultipart(ctx context.Context, path string, fields []formField, fileField string, file *Attachment, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("writing form field %s: %w", f.name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     fileField,
		"filename": file.Name,
	}))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(file.Reader, MaxAttachmentSize+1)); err != nil {
		return fmt.Errorf("copying %s: %w", file.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	c.logger.Debug("uploading attachment",
		"path", path,
		"file", file.Name,
		"size_mb", fmt.Sprintf("%.2f", float64(file.Size)/(1024*1024)))

	return c.do(req, out)
}
