// Package assistant wraps the hosted Groq API: chat completion over the
// replayed context window, Whisper transcription, sentiment classification,
// and image description. Groq speaks the OpenAI wire protocol, so one
// client serves all four.
package assistant

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/malganisridhargoud/groqchat/internal/memory"
	"github.com/malganisridhargoud/groqchat/internal/observability"
)

const systemPrompt = "You are a helpful, concise personal assistant. " +
	"Use the prior conversation turns for context when they are relevant."

type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	AudioModel  string
	VisionModel string
}

type Client struct {
	api     openai.Client
	cfg     Config
	log     zerolog.Logger
	metrics *observability.Metrics
}

func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:     openai.NewClient(opts...),
		cfg:     cfg,
		log:     logger.With().Str("component", "assistant").Logger(),
		metrics: metrics,
	}
}

// Chat produces the assistant's reply to prompt, grounded on the supplied
// context window. History must be ascending by sequence, the order the
// memory manager returns it.
func (c *Client) Chat(ctx context.Context, history []memory.Turn, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case memory.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.ChatModel),
		Messages: messages,
	})
	if err != nil {
		c.metrics.IncProviderError("chat")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.metrics.IncProviderError("chat")
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
