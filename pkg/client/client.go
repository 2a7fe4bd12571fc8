package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ticket is the client-side view of a ticket.
type Ticket struct {
	ID        string     `json:"id"`
	Name      *string    `json:"name"`
	Issue     *string    `json:"issue"`
	Category  *string    `json:"category"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Messages  []Message  `json:"messages,omitempty"`
}

// Message is the client-side view of a thread message.
type Message struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError is a structured error returned by the service.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Retryable reports whether the caller may simply retry the request.
func (e *APIError) Retryable() bool {
	return e.HTTPStatus >= 500
}

// Client calls the ticket intake HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates an API client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cl := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// SubmitUserMessage sends one intake turn and returns the assistant's reply.
// ticketID may be empty: the server starts a new conversation or resumes the
// single open one either way.
func (c *Client) SubmitUserMessage(ctx context.Context, ticketID, text string) (string, error) {
	body := map[string]string{"message": text}
	if ticketID != "" {
		body["ticket_id"] = ticketID
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// GetTicket fetches a ticket with its ordered messages.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out struct {
		Data Ticket `json:"data"`
	}
	path := "/api/tickets/" + url.PathEscape(ticketID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ListTickets fetches ticket summaries, optionally filtered by status.
func (c *Client) ListTickets(ctx context.Context, statuses ...string) ([]Ticket, error) {
	var out struct {
		Data []Ticket `json:"data"`
	}
	path := "/api/tickets"
	if len(statuses) > 0 {
		path += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CloseTicket closes a ticket; closing twice is safe.
func (c *Client) CloseTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out struct {
		Data Ticket `json:"data"`
	}
	path := "/api/tickets/" + url.PathEscape(ticketID) + "/close"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// PostAdminMessage appends an admin reply to a ticket.
func (c *Client) PostAdminMessage(ctx context.Context, ticketID, content string) (*Message, error) {
	var out struct {
		Data Message `json:"data"`
	}
	path := "/api/tickets/" + url.PathEscape(ticketID) + "/message"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(respBody, &wrapper); err == nil && wrapper.Error.Code != "" {
			wrapper.Error.HTTPStatus = resp.StatusCode
			return &wrapper.Error
		}
		return &APIError{Code: "UNKNOWN", Message: string(respBody), HTTPStatus: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
