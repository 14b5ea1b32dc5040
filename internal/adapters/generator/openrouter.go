package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/revrost/go-openrouter"
)

var ErrEmptyResponse = errors.New("model returned no choices")

// OpenRouterClient is the subset of the OpenRouter API client in use.
type OpenRouterClient interface {
	CreateChatCompletion(ctx context.Context,
		ccr openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

type OpenRouter struct {
	client       OpenRouterClient
	model        string
	systemPrompt string
}

func NewOpenRouter(apiKey, model, systemPrompt string) *OpenRouter {
	return &OpenRouter{
		model:        model,
		systemPrompt: systemPrompt,
		client: openrouter.NewClient(
			apiKey,
			openrouter.WithXTitle("relaybot"),
		),
	}
}

func (c *OpenRouter) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	messages := make([]openrouter.ChatCompletionMessage, 0, 2)

	if c.systemPrompt != "" {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role: openrouter.ChatMessageRoleSystem,
			Content: openrouter.Content{
				Text: c.systemPrompt,
			},
		})
	}

	messages = append(messages, openrouter.ChatCompletionMessage{
		Role: openrouter.ChatMessageRoleUser,
		Content: openrouter.Content{
			Text: prompt,
		},
	})

	ccr := openrouter.ChatCompletionRequest{
		Messages: messages,
		Model:    c.model,
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("openrouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	// replies go to a line based chat, collapse paragraphs
	return strings.Join(strings.Fields(resp.Choices[0].Message.Content.Text), " "), nil
}
