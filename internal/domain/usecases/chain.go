package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// DefaultSystemPrompt states the assistant's role and the grounding rule.
const DefaultSystemPrompt = "You are a knowledgeable, careful assistant. " +
	"Answer the current question using the reference material and the conversation history below. " +
	"If the reference material does not cover the question, say so instead of guessing."

// ErrEmptyCompletion is returned when the chat model answered with no text.
var ErrEmptyCompletion = errors.New("chat model returned an empty completion")

// ChainConfig tunes a RetrievalChain.
type ChainConfig struct {
	TopK          int
	HistoryWindow int // number of most recent messages put into the prompt
	SystemPrompt  string
}

// RetrievalChain answers a query for one session:
// retrieve → format → fetch history → assemble → complete → parse.
// Every step but the two external calls is a pure function.
type RetrievalChain struct {
	sessionID     string
	index         ports.VectorIndex
	history       ports.HistoryStore
	llm           ports.ChatCompleter
	topK          int
	historyWindow int
	systemPrompt  string
	log           logrus.FieldLogger
}

// NewRetrievalChain creates a chain bound to sessionID.
func NewRetrievalChain(
	sessionID string,
	index ports.VectorIndex,
	history ports.HistoryStore,
	llm ports.ChatCompleter,
	cfg ChainConfig,
	log logrus.FieldLogger,
) *RetrievalChain {
	if cfg.TopK <= 0 {
		cfg.TopK = 1
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RetrievalChain{
		sessionID:     sessionID,
		index:         index,
		history:       history,
		llm:           llm,
		topK:          cfg.TopK,
		historyWindow: cfg.HistoryWindow,
		systemPrompt:  cfg.SystemPrompt,
		log:           log.WithField("session", sessionID),
	}
}

// Run produces the model's answer to query. Failures are *entities.Error of
// kind KindRetrieval or KindCompletion.
func (c *RetrievalChain) Run(ctx context.Context, query string) (string, error) {
	results, err := c.index.Search(ctx, query, c.topK)
	if err != nil {
		return "", entities.NewError(entities.KindRetrieval, "search passages", err)
	}

	prompt := AssemblePrompt(
		c.systemPrompt,
		FormatPassages(results),
		c.history.Formatted(c.sessionID, c.historyWindow),
		query,
	)
	c.log.WithField("passages", len(results)).Debugf("prompt:\n%s", prompt)

	out, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return "", entities.NewError(entities.KindCompletion, "complete prompt", err)
	}
	return ParseOutput(out)
}

// FormatPassages renders retrieved chunks with their metadata, separated by
// blank lines. No results yields entities.NoReferenceMaterial.
func FormatPassages(results []entities.SearchResult) string {
	if len(results) == 0 {
		return entities.NoReferenceMaterial
	}
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Passage: %s\nMetadata: %s\n\n", r.Chunk.Content, r.Chunk.Metadata)
	}
	return sb.String()
}

// AssemblePrompt fills the prompt slots.
func AssemblePrompt(system, passages, history, input string) entities.Prompt {
	return entities.Prompt{
		System:  system,
		Context: passages,
		History: history,
		Input:   input,
	}
}

// ParseOutput returns the completion verbatim; a blank completion is malformed.
func ParseOutput(out string) (string, error) {
	if strings.TrimSpace(out) == "" {
		return "", entities.NewError(entities.KindCompletion, "parse completion", ErrEmptyCompletion)
	}
	return out, nil
}
