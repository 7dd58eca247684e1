// Package slack posts suggestion notifications to a Slack channel. It is
// the fallback sink for forges where posting comments is disabled.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dupbot/dupbot/domain/thread"
)

// DefaultChatWriteURL is the standard Slack message endpoint.
const DefaultChatWriteURL = "https://slack.com/api/chat.postMessage"

// Client posts messages via chat.postMessage with a bot token.
type Client struct {
	authToken    string
	channel      string
	chatWriteURL string
	httpClient   *http.Client
}

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.httpClient = c }
}

// NewClient creates a Client. An empty chatWriteURL selects the standard
// Slack endpoint.
func NewClient(authToken, channel, chatWriteURL string, opts ...Option) *Client {
	if chatWriteURL == "" {
		chatWriteURL = DefaultChatWriteURL
	}
	s := &Client{
		authToken:    authToken,
		channel:      channel,
		chatWriteURL: chatWriteURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type message struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ClosestThreads posts the nearest neighbors of a freshly opened thread.
func (s *Client) ClosestThreads(ctx context.Context, t thread.Thread, matches []thread.Match) error {
	return s.post(ctx, renderClosestThreads(t, matches))
}

func renderClosestThreads(t thread.Thread, matches []thread.Match) string {
	lines := make([]string, 0, len(matches)+1)
	lines = append(lines, fmt.Sprintf("Closest threads for %s <%s|#%d>:\n```%s```",
		t.Title(), t.HTMLURL(), t.Number(), t.Body()))
	for _, m := range matches {
		mt := m.Thread()
		lines = append(lines, fmt.Sprintf("- %s (<%s|#%d>):\n```%s```",
			mt.Title(), mt.HTMLURL(), mt.Number(), mt.Body()))
	}
	return strings.Join(lines, "\n")
}

func (s *Client) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(message{Channel: s.channel, Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.chatWriteURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack request: status %d", resp.StatusCode)
	}

	// Slack reports API errors inside a 200 response.
	var parsed postMessageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("slack rejected message: %s", parsed.Error)
	}
	return nil
}
