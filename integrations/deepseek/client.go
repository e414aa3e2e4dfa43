// Package deepseek generates chat replies through the DeepSeek
// OpenAI-compatible API.
package deepseek

import (
	"context"
	"fmt"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/domains/history"
	"github.com/brainzab/mranatoly-bot/pkg/retry"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

type Client struct {
	api openai.Client
}

func NewClient() *Client {
	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(config.DeepSeekAPIKey),
			option.WithBaseURL(config.DeepSeekBaseURL),
		),
	}
}

// Complete builds the persona conversation (system prompt, persisted history,
// then the live query) and returns the model's reply text. The call is
// retried with exponential backoff because the upstream sheds load under
// bursts.
func (c *Client) Complete(ctx context.Context, entries []history.Entry, query string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(entries)+2)
	messages = append(messages, openai.SystemMessage(config.SystemPrompt()))
	for _, e := range entries {
		switch e.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(e.Content))
		default:
			messages = append(messages, openai.UserMessage(e.Content))
		}
	}
	if query != "" {
		messages = append(messages, openai.UserMessage(query))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(config.AIModel),
		Messages:    messages,
		MaxTokens:   openai.Int(config.AIMaxTokens),
		Temperature: openai.Float(config.AITemperature),
	}

	return retry.Do(ctx, "deepseek completion", func(ctx context.Context) (string, error) {
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("completion returned no choices")
		}
		text := completion.Choices[0].Message.Content
		logrus.Debugf("[DEEPSEEK] completion of %d chars for %d history entries", len(text), len(entries))
		return text, nil
	}, 3, time.Second)
}
