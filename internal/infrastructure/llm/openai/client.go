// Package openai adapts the OpenAI chat completions API to the ChatModel port.
package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vessellink/veddy/internal/core/ports"
)

type Client struct {
	client      openaisdk.Client
	model       string
	temperature float64
	maxTokens   int64
}

func New(apiKey, baseURL, model string, temperature float64, maxTokens int64) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client:      openaisdk.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (c *Client) Stream(ctx context.Context, messages []ports.ChatMessage, onDelta func(delta string) error) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("chat stream: %w", err)
	}
	return nil
}

func (c *Client) Invoke(ctx context.Context, messages []ports.ChatMessage) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func (c *Client) params(messages []ports.ChatMessage) openaisdk.ChatCompletionNewParams {
	converted := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ports.RoleSystem:
			converted = append(converted, openaisdk.SystemMessage(m.Content))
		case ports.RoleAssistant:
			converted = append(converted, openaisdk.AssistantMessage(m.Content))
		default:
			converted = append(converted, openaisdk.UserMessage(m.Content))
		}
	}
	return openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(c.model),
		Messages:    converted,
		Temperature: openaisdk.Float(c.temperature),
		MaxTokens:   openaisdk.Int(c.maxTokens),
	}
}
