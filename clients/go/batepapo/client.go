// Package batepapo provides a client for the batepapo chat server.
package batepapo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Broadcast is the recipient that addresses everyone in the room.
const Broadcast = "Todos"

// Message types a client may post.
const (
	TypeMessage        = "message"
	TypePrivateMessage = "private_message"
	TypeStatus         = "status"
)

// HeartbeatInterval is how often a connected client should call Refresh.
const HeartbeatInterval = 5 * time.Second

// Client is a batepapo API client acting as one participant.
type Client struct {
	BaseURL    string
	User       string
	HTTPClient *http.Client
}

// NewClient creates a new client for user.
func NewClient(baseURL, user string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	return &Client{
		BaseURL:    baseURL,
		User:       user,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for any non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("batepapo error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON answer into out
// when out is not nil.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
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
	if c.User != "" {
		req.Header.Set("User", c.User)
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
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Participant is an entry of the participant list.
type Participant struct {
	Name string `json:"name"`
}

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	Time      string `json:"time"`
	Timestamp int64  `json:"ts"`
}

// MessageRequest is the body of post and edit.
type MessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// Join enters the room as c.User.
func (c *Client) Join(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/participants", Participant{Name: c.User}, nil)
}

// Participants lists the active participants.
func (c *Client) Participants(ctx context.Context) ([]Participant, error) {
	var resp []Participant
	if err := c.doRequest(ctx, http.MethodGet, "/participants", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Refresh sends a heartbeat.
func (c *Client) Refresh(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/status", nil, nil)
}

// Post sends a message.
func (c *Client) Post(ctx context.Context, msg MessageRequest) (*Message, error) {
	var resp Message
	if err := c.doRequest(ctx, http.MethodPost, "/messages", msg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Messages returns the messages visible to c.User. A negative limit
// returns all of them.
func (c *Client) Messages(ctx context.Context, limit int) ([]Message, error) {
	path := "/messages"
	if limit >= 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp []Message
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Edit replaces a message owned by c.User.
func (c *Client) Edit(ctx context.Context, id string, msg MessageRequest) (*Message, error) {
	var resp Message
	if err := c.doRequest(ctx, http.MethodPut, "/messages/"+url.PathEscape(id), msg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a message owned by c.User.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), nil, nil)
}

// SearchResponse is the answer of Search.
type SearchResponse struct {
	Query   string    `json:"query"`
	Results []Message `json:"results"`
	Total   int       `json:"total"`
}

// Search finds visible messages containing every word of query.
func (c *Client) Search(ctx context.Context, query string) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.doRequest(ctx, http.MethodGet, "/messages/search?q="+url.QueryEscape(query), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from health check.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
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

// KeepAlive calls Refresh every HeartbeatInterval until ctx is done or a
// heartbeat is rejected.
func (c *Client) KeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}
