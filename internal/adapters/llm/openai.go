// Package llm implements core.Generator on an OpenAI-compatible
// chat-completions endpoint.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dkeye/textworld/internal/config"
)

type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New returns nil when no API key is configured; callers treat a nil
// generator as "no backend" and fall back.
func New(cfg config.LLM) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(c),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Generate runs one completion. Any failure or empty result yields ok=false;
// the engine substitutes fallback text, never an error to the player.
func (c *Client) Generate(ctx context.Context, prompt string) (string, bool) {
	if c == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.llm").Msg("completion failed")
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", false
	}
	return out, true
}
