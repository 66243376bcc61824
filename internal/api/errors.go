// ABOUTME: Error types returned by the chat API client
// ABOUTME: Distinguishes server rejections from oversized attachments rejected locally

package api

import (
	"errors"
	"fmt"
)

// MaxAttachmentSize is the largest attachment the client will upload (19 MB).
const MaxAttachmentSize int64 = 19 * 1024 * 1024

// ErrAttachmentTooLarge is matched by every AttachmentTooLargeError.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// AttachmentTooLargeError is returned before any request is issued when an
// attachment exceeds MaxAttachmentSize.
type AttachmentTooLargeError struct {
	Name      string
	SizeBytes int64
}

func (e *AttachmentTooLargeError) Error() string {
	mb := float64(e.SizeBytes) / (1024 * 1024)
	return fmt.Sprintf("file size (%.2f MB) exceeds the 19 MB limit", mb)
}

// Is lets errors.Is(err, ErrAttachmentTooLarge) match.
func (e *AttachmentTooLargeError) Is(target error) bool {
	return target == ErrAttachmentTooLarge
}

// StatusError is a non-2xx response or a {success:false} envelope.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api error (%d): %s", e.StatusCode, e.Message)
}
