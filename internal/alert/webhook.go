package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBodyLen = 4 << 10

// WebhookChannel POSTs each notification as JSON to a URL.
type WebhookChannel struct {
	name    string
	target  string
	headers map[string]string
	client  *http.Client
}

// ChatWebhookChannel POSTs a Slack-compatible {"text": ...} message to an incoming-webhook URL.
type ChatWebhookChannel struct {
	name   string
	target string
	client *http.Client
}

type chatMessage struct {
	Text string `json:"text"`
}

// NewWebhookChannel creates a JSON webhook channel. name defaults to "webhook".
func NewWebhookChannel(name string, target string, headers map[string]string, client *http.Client) (*WebhookChannel, error) {
	u, err := parseWebhookURL(target)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(name) == "" {
		name = "webhook"
	}

	return &WebhookChannel{
		name:    name,
		target:  u,
		headers: maps.Clone(headers),
		client:  client,
	}, nil
}

// Name implements Channel.
func (c *WebhookChannel) Name() string {
	return c.name
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return post(ctx, c.client, c.target, c.headers, body)
}

// NewChatWebhookChannel creates a chat webhook channel. name defaults to "chat".
func NewChatWebhookChannel(name string, target string, client *http.Client) (*ChatWebhookChannel, error) {
	u, err := parseWebhookURL(target)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(name) == "" {
		name = "chat"
	}

	return &ChatWebhookChannel{
		name:   name,
		target: u,
		client: client,
	}, nil
}

// Name implements Channel.
func (c *ChatWebhookChannel) Name() string {
	return c.name
}

// Send implements Channel.
func (c *ChatWebhookChannel) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(chatMessage{Text: n.Subject()})
	if err != nil {
		return err
	}
	return post(ctx, c.client, c.target, nil, body)
}

func parseWebhookURL(target string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("invalid webhook url '%s': %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("webhook url '%s' must be an absolute http(s) url", target)
	}
	return u.String(), nil
}

func post(ctx context.Context, client *http.Client, target string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
