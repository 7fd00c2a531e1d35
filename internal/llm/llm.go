// Package llm wraps langchaingo behind the small Generator contract the turn
// service consumes. Provider selection is configuration-driven; the
// OpenAI-compatible path accepts a custom base URL so hosted inference
// gateways exposing the same wire protocol can be used unchanged.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/advdigital/go-lead-intake/internal/config"
)

// Turn roles as consumed by Complete. The turn service owns the translation
// from storage roles to these.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange entry sent as model context.
type Turn struct {
	Role    string
	Content string
}

// Client generates assistant replies through a langchaingo model.
type Client struct {
	llm       llms.Model
	modelName string
	timeout   time.Duration
	maxTries  uint64
	baseDelay time.Duration
}

// New creates a Client for the configured provider. A missing credential is a
// configuration error detected here, before any turn is processed.
func New(cfg config.LLMConfig) (*Client, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm: API key required for openai provider")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, errors.New("llm: API key required for anthropic provider")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}

	return &Client{
		llm:       model,
		modelName: cfg.Model,
		timeout:   cfg.Timeout,
		maxTries:  uint64(cfg.MaxRetries),
		baseDelay: cfg.RetryBaseDelay,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.modelName }

// Complete sends the system instruction, prior turns, and implicit new user
// turn (the last Turn) to the model and returns its text reply. Each attempt
// carries its own timeout; transient failures are retried with bounded
// exponential backoff. Cancellation of the parent context stops retrying.
func (c *Client) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	msgs := make([]llms.MessageContent, 0, len(turns)+1)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, t := range turns {
		role := llms.ChatMessageTypeHuman
		if t.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}

	attempt := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.llm.GenerateContent(callCtx, msgs,
			llms.WithTemperature(0.7),
			llms.WithMaxTokens(1024),
		)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("llm: no response choices")
		}
		return resp.Choices[0].Content, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxTries), ctx)

	var out string
	err := backoff.Retry(func() error {
		var err error
		out, err = attempt()
		return err
	}, policy)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return out, nil
}
