// Package llm provides chat model adapters.
// Clean Architecture: adapters implementing ports.ChatCompleter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// OllamaChat implements ports.ChatCompleter using the Ollama chat API.
type OllamaChat struct {
	baseURL string
	model   string
	client  *http.Client
	log     logrus.FieldLogger
}

// NewOllamaChat creates a new Ollama chat adapter.
func NewOllamaChat(baseURL, model string, log logrus.FieldLogger) *OllamaChat {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OllamaChat{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // local models can be slow to answer
		},
		log: log.WithField("component", "ollama-chat"),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Complete sends the prompt's messages and returns the full answer.
func (a *OllamaChat) Complete(ctx context.Context, prompt entities.Prompt) (string, error) {
	msgs := prompt.Messages()
	reqBody := ollamaChatRequest{
		Model:    a.model,
		Messages: make([]ollamaMessage, len(msgs)),
		Stream:   false,
	}
	for i, m := range msgs {
		reqBody.Messages[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&chatResp)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && chatResp.Error != "" {
			return "", fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, chatResp.Error)
		}
		return "", fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decoding response: %w", decodeErr)
	}

	a.log.WithFields(logrus.Fields{
		"model":   a.model,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("chat completed")
	return chatResp.Message.Content, nil
}
