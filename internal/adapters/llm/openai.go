package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("chat API returned no choices")

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAIChat implements ports.ChatCompleter using go-openai.
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
	log         logrus.FieldLogger
}

// NewOpenAIChat creates a chat adapter for an OpenAI-compatible API.
func NewOpenAIChat(cfg OpenAIConfig, log logrus.FieldLogger) *OpenAIChat {
	if cfg.Model == "" {
		cfg.Model = "qwen3-max"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIChat{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log.WithField("component", "openai-chat"),
	}
}

// Complete sends the prompt's messages and returns the first choice.
func (c *OpenAIChat) Complete(ctx context.Context, prompt entities.Prompt) (string, error) {
	msgs := prompt.Messages()
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, len(msgs)),
		Temperature: c.temperature,
	}
	for i, m := range msgs {
		req.Messages[i] = openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.log.WithFields(logrus.Fields{
		"model":  resp.Model,
		"tokens": resp.Usage.TotalTokens,
		"finish": resp.Choices[0].FinishReason,
	}).Debug("chat completed")
	return resp.Choices[0].Message.Content, nil
}

func chatRole(r entities.Role) string {
	switch r {
	case entities.RoleSystem:
		return openai.ChatMessageRoleSystem
	case entities.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
