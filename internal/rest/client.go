// Package rest consumes the chat endpoints of the roommate service API:
// conversation history and the contact list. Fetch failures stay local to
// the caller and never touch the socket connection state.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"dormchat/internal/models"
)

const defaultHistoryLimit = 100

// Client is an HTTP client for the chat REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ChatHistory fetches messages between the current user and another user.
// The server returns newest-first; the result is re-sorted ascending for
// display. A non-positive limit falls back to the default page size.
func (c *Client) ChatHistory(ctx context.Context, me, other int64, skip, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	u := fmt.Sprintf("%s/messages/%d/%d?%s", c.baseURL, me, other, url.Values{
		"skip":  {strconv.Itoa(skip)},
		"limit": {strconv.Itoa(limit)},
	}.Encode())

	var wire []models.WireMessage
	if err := c.getJSON(ctx, u, &wire); err != nil {
		return nil, fmt.Errorf("fetch chat history: %w", err)
	}

	msgs := make([]models.Message, 0, len(wire))
	for i := range wire {
		msgs = append(msgs, wire[i].ToMessage())
	}
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return msgs, nil
}

// Contacts fetches the user's conversation summaries.
func (c *Client) Contacts(ctx context.Context, me int64) ([]models.Contact, error) {
	u := fmt.Sprintf("%s/messages-contacts/%d", c.baseURL, me)

	var wire []models.WireContact
	if err := c.getJSON(ctx, u, &wire); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	contacts := make([]models.Contact, 0, len(wire))
	for i := range wire {
		contacts = append(contacts, wire[i].ToContact())
	}
	return contacts, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", u, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
