package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sentinal-widget/internal/domain"
	widget_errors "sentinal-widget/pkg/errors"
)

// Client is the request/response side of the server contract: the chat
// fallback endpoint used while the realtime channel is down, plus the
// reaction, edit and delete endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ChatRequest is the fallback send payload.
type ChatRequest struct {
	Message        string              `json:"message"`
	ConversationID string              `json:"conversationId"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
	ReplyToID      string              `json:"replyToId,omitempty"`
}

// ChatResponse carries the assistant reply synchronously.
type ChatResponse struct {
	Response  string                 `json:"response"`
	SessionID string                 `json:"sessionId"`
	MessageID string                 `json:"messageId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SendMessage performs one synchronous chat round trip. Any transport
// or non-success failure maps to ErrSendFailed.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat", req, &out); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", widget_errors.ErrSendFailed, err)
	}
	return out, nil
}

// React records one emoji reaction. Callers apply the reaction locally
// first and treat this call as fire-and-forget.
func (c *Client) React(ctx context.Context, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/messages/"+messageID+"/reactions", body, nil)
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) error {
	body := map[string]string{"content": content}
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/messages/"+messageID, body, nil)
}

// DeleteMessage removes a message server-side. Callers mark the local
// record deleted only after this returns nil.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/messages/"+messageID, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
