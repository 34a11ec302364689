// Package webhook delivers formatted notifications to an operator-
// configured HTTP endpoint (Discord-compatible JSON body).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kojira/nostaro/internal/errors"
)

// MaxContentLength is the hard cap the endpoint enforces on message
// content; longer messages are truncated with an ellipsis before
// sending.
const MaxContentLength = 2000

// Message is one webhook delivery.
type Message struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Client posts messages to a single webhook URL.
type Client struct {
	url  string
	http *http.Client
}

// New creates a webhook client for the given URL.
func New(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send delivers one message. The content is truncated to
// MaxContentLength before sending. A transport failure or non-2xx
// response yields a DELIVERY error; the caller decides whether that
// aborts anything (the watch loop never lets it).
func (c *Client) Send(ctx context.Context, msg Message) error {
	msg.Content = Truncate(msg.Content, MaxContentLength)

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewDelivery(fmt.Sprintf("webhook request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewDelivery(fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, respBody))
	}
	return nil
}

// Truncate shortens s to at most max runes, appending "..." when
// anything was cut. Counting is by rune so multibyte content is never
// split mid-character.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
