// Package evolution is the outbound delivery client for the Evolution API
// (WhatsApp HTTP bridge). The engine treats delivery as opaque: destination
// plus text in, success or error out.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nosdois/duet/internal/providers"
)

// Client sends messages through one Evolution API instance.
type Client struct {
	baseURL     string
	instance    string
	apiKey      string
	client      *http.Client
	retryConfig providers.RetryConfig
}

// Options configure a new Client; zero values get defaults.
type Options struct {
	BaseURL  string
	Instance string
	APIKey   string
	Timeout  time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("evolution base_url is required")
	}
	if opts.Instance == "" {
		return nil, fmt.Errorf("evolution instance is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		instance:    opts.Instance,
		apiKey:      opts.APIKey,
		client:      &http.Client{Timeout: opts.Timeout},
		retryConfig: providers.DefaultRetryConfig(),
	}, nil
}

type sendTextPayload struct {
	Number      string   `json:"number"`
	Text        string   `json:"text"`
	Delay       int      `json:"delay,omitempty"`
	LinkPreview bool     `json:"linkPreview"`
	Mentioned   []string `json:"mentioned,omitempty"`
}

// SendText delivers one text segment to a chat, retrying transient transport
// failures with bounded backoff. mentions lists JIDs to tag in the message.
func (c *Client) SendText(ctx context.Context, chatID, text string, mentions []string) error {
	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instance)

	body, err := json.Marshal(sendTextPayload{
		Number:      chatID,
		Text:        text,
		Delay:       1200,
		LinkPreview: true,
		Mentioned:   mentions,
	})
	if err != nil {
		return fmt.Errorf("marshal sendText: %w", err)
	}

	_, err = providers.RetryDo(ctx, c.retryConfig, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, url, body)
	})
	if err != nil {
		return err
	}

	slog.Debug("evolution message sent", "chat_id", chatID, "len", len(text))
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("evolution: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return providers.Transient(fmt.Errorf("evolution: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("evolution: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return providers.Transient(err)
		}
		return err
	}

	return nil
}
