// Package globalchat provides a client for the global chat server: a thin
// HTTP API client and a polling Service that keeps local state in sync.
package globalchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://localhost:3001/api"

// TimestampFormat is the ISO-8601 layout used for message timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// ChatState is the full state returned by the server.
type ChatState struct {
	Messages    []Message `json:"messages"`
	ActiveUsers []string  `json:"activeUsers"`
}

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("globalchat error %d: %s", e.StatusCode, e.Message)
}

// Client is a global chat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new API client. Requests have no client-side timeout;
// bound them through the context or by replacing HTTPClient.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// GetChat fetches every message and the active users.
func (c *Client) GetChat(ctx context.Context) (*ChatState, error) {
	var resp ChatState
	if err := c.doRequest(ctx, http.MethodGet, "/chat", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	SessionID string `json:"sessionId"`
}

// PostMessageResponse is the response from posting a message.
type PostMessageResponse struct {
	Success bool    `json:"success"`
	Message Message `json:"message"`
}

// PostMessage posts a message on behalf of sender.
func (c *Client) PostMessage(ctx context.Context, text, sender, sessionID string) (*Message, error) {
	req := PostMessageRequest{Text: text, Sender: sender, SessionID: sessionID}

	var resp PostMessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// HeartbeatRequest is the request body for a presence heartbeat.
type HeartbeatRequest struct {
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

// HeartbeatResponse is the response from a heartbeat.
type HeartbeatResponse struct {
	Success     bool     `json:"success"`
	ActiveUsers []string `json:"activeUsers"`
}

// Heartbeat reports username as present in this session and returns the active users.
func (c *Client) Heartbeat(ctx context.Context, username, sessionID string) ([]string, error) {
	req := HeartbeatRequest{Username: username, SessionID: sessionID}

	var resp HeartbeatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/heartbeat", req, &resp); err != nil {
		return nil, err
	}
	return resp.ActiveUsers, nil
}

// Clear deletes every message on the server.
func (c *Client) Clear(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/clear", nil, nil)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
