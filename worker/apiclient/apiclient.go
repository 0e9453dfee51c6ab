// Package apiclient is the worker's typed client for the persistence
// backend. Every operation is a single round trip; callers decide whether to
// retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/uselocalchat/localchat/chat"
)

// ErrSyncUnavailable is returned on any transport error or non-success
// response. The orchestrator decides how to degrade; this client never
// swallows a failure.
var ErrSyncUnavailable = errors.New("sync backend unavailable")

// Client talks to the backend's chat/message endpoints.
type Client struct {
	base  string
	httpc *http.Client
}

// New builds a client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		base:  baseURL,
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// GetChat fetches the chat record for id, or nil when none exists.
func (c *Client) GetChat(ctx context.Context, id string) (*chat.Record, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/chat", url.Values{"id": {id}}, nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	record := &chat.Record{}
	if err := json.Unmarshal(env.Data, record); err != nil {
		return nil, errors.Wrapf(ErrSyncUnavailable, "decode chat record: %v", err)
	}
	return record, nil
}

// CreateChat creates the chat record. Duplicate ids are a no-op server-side.
func (c *Client) CreateChat(ctx context.Context, id, userID, title string) error {
	body := map[string]string{"id": id, "userId": userID, "title": title}
	_, err := c.call(ctx, http.MethodPost, "/api/chat", nil, body)
	return err
}

// AppendMessages persists a batch of messages.
func (c *Client) AppendMessages(ctx context.Context, messages []chat.Message) error {
	body := map[string]any{"messages": messages}
	_, err := c.call(ctx, http.MethodPost, "/api/message", nil, body)
	return err
}

// DeleteChat removes a chat and its messages on behalf of userID.
func (c *Client) DeleteChat(ctx context.Context, id, userID string) error {
	target := c.base + "/api/message?" + url.Values{"id": {id}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return errors.Wrapf(ErrSyncUnavailable, "build request: %v", err)
	}
	req.Header.Set("X-User-Id", userID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(ErrSyncUnavailable, "DELETE /api/message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrSyncUnavailable, "DELETE /api/message: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any) (*envelope, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(ErrSyncUnavailable, "encode request: %v", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, errors.Wrapf(ErrSyncUnavailable, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrSyncUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	env := &envelope{}
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return nil, errors.Wrapf(ErrSyncUnavailable, "%s %s: decode response: %v", method, path, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		reason := env.Error
		if reason == "" {
			reason = env.Message
		}
		return nil, errors.Wrapf(ErrSyncUnavailable, "%s %s: status %d: %s", method, path, resp.StatusCode, reason)
	}
	return env, nil
}
