// Package remote is the HTTP client for the chat export service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hochfrequenz/chat-export-orchestrator/internal/config"
	"github.com/hochfrequenz/chat-export-orchestrator/internal/domain"
)

const (
	defaultTimeout  = 60 * time.Second
	maxErrorBody    = 4 << 10
	maxResponseBody = 32 << 20
)

// ErrResponseTooLarge is returned when a response body exceeds the client's limit
var ErrResponseTooLarge = errors.New("response body too large")

// APIError is a failure reported by the remote service. Only the message is meaningful.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("remote error (%d): %s", e.StatusCode, e.Message)
	}
	return "remote error: " + e.Message
}

// envelope is the response wrapper every endpoint uses
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the remote export service
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	maxBody int64
}

// New creates a client from the remote config section.
// A zero requests_per_second disables client-side throttling.
func New(cfg config.RemoteConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		maxBody: maxResponseBody,
	}
}

type mergePayload struct {
	SourceIDs           []string `json:"sourceIds"`
	DeleteSourceFiles   bool     `json:"deleteSourceFiles"`
	DeduplicateMessages bool     `json:"deduplicateMessages"`
}

type openLocationPayload struct {
	Path string `json:"path"`
}

// SubmitExport asks the service to create one export task.
// The boolean is the service's verdict; err carries the reason when it is false.
func (c *Client) SubmitExport(ctx context.Context, req domain.ExportRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	if err := c.do(ctx, http.MethodPost, "/api/messages/export", req, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Merge combines the requested backups into one artifact
func (c *Client) Merge(ctx context.Context, req domain.MergeRequest) (*domain.MergeResult, error) {
	payload := mergePayload{
		SourceIDs:           req.SourceIDs,
		DeleteSourceFiles:   req.DeleteSources,
		DeduplicateMessages: req.Dedupe,
	}
	var result domain.MergeResult
	if err := c.do(ctx, http.MethodPost, "/api/backups/merge", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMergeableBackups returns backup files grouped by the task that produced them
func (c *Client) ListMergeableBackups(ctx context.Context) ([]domain.BackupGroup, error) {
	var groups []domain.BackupGroup
	if err := c.do(ctx, http.MethodGet, "/api/backups/mergeable", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListSessions returns the exportable chat sessions
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// OpenFileLocation asks the service host to reveal a path in its file manager
func (c *Client) OpenFileLocation(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/api/system/open-file-location", openLocationPayload{Path: path}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out, c.maxBody)
}

func decodeEnvelope(resp *http.Response, out any, limit int64) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, limit, resp.Request.URL.Path)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: snippet(data, resp.Status)}
		}
		return fmt.Errorf("decoding response: %w", err)
	}

	if !env.Success || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "request failed"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

func snippet(data []byte, fallback string) string {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return fallback
	}
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// ErrorMessage extracts the user-facing message of a remote failure
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
