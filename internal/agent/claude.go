package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/BnJam/hyperion/internal/debug"
)

const (
	claudeMaxTokens  = 2048
	claudeMaxRetries = 3
)

// ClaudeHarness calls the Anthropic Messages API. The API key comes from
// ANTHROPIC_API_KEY, picked up by the SDK's default client options.
type ClaudeHarness struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeHarness returns a harness for the given model name.
func NewClaudeHarness(model string) *ClaudeHarness {
	return &ClaudeHarness{
		client: anthropic.NewClient(option.WithMaxRetries(0)),
		model:  anthropic.Model(model),
	}
}

func (h *ClaudeHarness) Run(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     h.model,
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(time.Second),
			backoff.WithMaxInterval(15*time.Second),
		), claudeMaxRetries), ctx)

	return backoff.RetryWithData(func() (string, error) {
		debug.Logf("anthropic messages.new model=%s", h.model)
		message, err := h.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryable(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if len(message.Content) == 0 {
			return "", backoff.Permanent(fmt.Errorf("unexpected response format: no content blocks"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return "", backoff.Permanent(fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type))
		}
		return content.Text, nil
	}, policy)
}

// isRetryable reports whether the API error is transient: network timeouts,
// rate limits, and server errors retry; everything else fails fast.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
