// Package persist reports the captions of an exported certificate to the token backend.
package persist

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

// DefaultTimeout bounds a single persistence call.
const DefaultTimeout = 10 * time.Second

// Record is the body posted for a token.
type Record struct {
	Token    string `json:"token"`
	Donor    string `json:"de"`
	Receiver string `json:"para"`
}

// Persister records certificate data for a token.
type Persister interface {
	Persist(ctx context.Context, rec Record) error
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("persist: backend returned status %d: %s", e.StatusCode, e.Body)
}

// Client posts records to {BaseURL}/certificate.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client. An empty baseURL posts to the relative path "/certificate"
// on the local origin, which only makes sense behind a proxy, so callers normally pass one.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Persist posts rec and returns an error for transport failures and non-2xx answers.
func (c *Client) Persist(ctx context.Context, rec Record) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: marshal record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/certificate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("persist: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("persist: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	c.logger.Debug("certificate data saved", "token", rec.Token, "status", resp.StatusCode)
	return nil
}
