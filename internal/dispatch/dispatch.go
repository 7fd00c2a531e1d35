// Package dispatch sends outbound replies to the messaging relay API.
//
// The relay exposes a bare JSON POST (sendText) authenticated by an "apikey"
// header. Recipient normalization — stripping provider-specific suffixes from
// the conversation id — happens at this boundary and nowhere else.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// defaultText is sent when a turn somehow produced an empty reply.
const defaultText = "Recebido."

// recipientSuffixes are provider decorations removed from conversation ids
// before use as a send target.
var recipientSuffixes = []string{"@s.whatsapp.net", "@c.us", "@g.us"}

// Client posts replies to the relay's sendText endpoint.
type Client struct {
	baseURL   string
	instance  string
	apiKey    string
	hc        *http.Client
	maxTries  uint64
	baseDelay time.Duration
	log       zerolog.Logger
}

// Options configures a dispatch Client.
type Options struct {
	BaseURL        string
	Instance       string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Logger         zerolog.Logger
}

// New returns a Client ready for concurrent use.
func New(opt Options) *Client {
	return &Client{
		baseURL:   strings.TrimRight(opt.BaseURL, "/"),
		instance:  opt.Instance,
		apiKey:    opt.APIKey,
		hc:        &http.Client{Timeout: opt.Timeout},
		maxTries:  uint64(opt.MaxRetries),
		baseDelay: opt.RetryBaseDelay,
		log:       opt.Logger,
	}
}

// sendTextRequest is the relay's wire payload. The delay field asks the relay
// to simulate typing before delivering.
type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Delay  int    `json:"delay"`
}

// NormalizeRecipient strips provider-specific suffixes from a conversation id.
func NormalizeRecipient(conversationID string) string {
	for _, suffix := range recipientSuffixes {
		if strings.HasSuffix(conversationID, suffix) {
			return strings.TrimSuffix(conversationID, suffix)
		}
	}
	return conversationID
}

// Send delivers text to the recipient. Network errors and 5xx responses are
// retried with bounded exponential backoff; 4xx responses are permanent
// (retrying a rejected payload cannot succeed). Context cancellation stops
// retrying immediately.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	if strings.TrimSpace(text) == "" {
		text = defaultText
	}
	payload, err := json.Marshal(sendTextRequest{
		Number: NormalizeRecipient(recipient),
		Text:   text,
		Delay:  1200,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instance)

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", c.apiKey)

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err = fmt.Errorf("dispatch: relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxTries), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		c.log.Error().Err(err).Str("recipient", NormalizeRecipient(recipient)).
			Msg("outbound dispatch failed")
		return err
	}
	return nil
}
