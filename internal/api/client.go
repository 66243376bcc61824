// ABOUTME: HTTP client for the Lavoro chat REST API
// ABOUTME: Handles bearer auth, the {success,data} envelope, timeouts and error responses

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRequestTimeout bounds plain JSON requests.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultUploadTimeout bounds multipart uploads, which carry binary payloads.
	DefaultUploadTimeout = 30 * time.Second

	chatPrefix = "/chat"
)

// TokenSource supplies the bearer credential for each request. A source that
// returns an error sends the request without an Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL        string // API root, e.g. http://localhost:3000
	HTTPClient     *http.Client
	Tokens         TokenSource
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	Logger         *slog.Logger
}

// Client talks to the chat REST API.
type Client struct {
	baseURL        string
	client         *http.Client
	tokens         TokenSource
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	logger         *slog.Logger
}

// New creates a Client. Zero timeouts fall back to the defaults.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}

	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		client:         httpClient,
		tokens:         opts.Tokens,
		requestTimeout: requestTimeout,
		uploadTimeout:  uploadTimeout,
		logger:         logger.With("component", "api"),
	}
}

// envelope is the response wrapper every chat endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// doJSON sends a request with an optional JSON body and decodes the envelope's
// data into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

// do applies auth, sends req and unwraps the envelope.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token, err := c.tokens.Token(); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return &StatusError{StatusCode: resp.StatusCode, Message: env.errorText()}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// handleErrorResponse extracts the error message from a non-2xx response.
func (c *Client) handleErrorResponse(status int, body []byte) error {
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		if msg := env.errorText(); msg != "" {
			return &StatusError{StatusCode: status, Message: msg}
		}
	}
	return &StatusError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (e envelope) errorText() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}
