// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"fmt"
	"strings"
	"time"
)

// Fixed texts that stand in for "nothing" so prompt assembly and callers never
// have to interpret an empty string.
const (
	NoHistory           = "No previous conversation."
	NoReferenceMaterial = "No relevant reference material."
	FallbackAnswer      = "Sorry, I could not answer that right now. Please try again in a moment."
)

// CreateTimeLayout is the layout used when chunk creation time is rendered as metadata.
const CreateTimeLayout = "2006-01-02 15:04:05"

// Document represents a source document (PDF, TXT, MD).
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkMetadata is the provenance attached to every chunk handed to the index.
type ChunkMetadata struct {
	Source      string    `json:"source"`
	CreateTime  time.Time `json:"create_time"`
	Operator    string    `json:"operator"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// String renders the metadata the way it appears in the retrieval context.
func (m ChunkMetadata) String() string {
	parts := []string{
		"source=" + m.Source,
		"create_time=" + m.CreateTime.Format(CreateTimeLayout),
		"operator=" + m.Operator,
	}
	return strings.Join(parts, ", ")
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID        string
	Content   string
	Index     int // Position in document
	Metadata  ChunkMetadata
	Embedding []float32 // Populated by the index adapter
}

// SearchResult is a chunk returned by similarity search.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// IngestStatus is the outcome of one ingestion call.
type IngestStatus string

const (
	IngestSkipped  IngestStatus = "skipped"
	IngestIngested IngestStatus = "ingested"
)

// IngestResult reports what happened to a piece of raw text.
type IngestResult struct {
	Status      IngestStatus
	Reason      string
	Fingerprint string
	Chunks      int
}

// String renders the result as a one-line status for CLI output.
func (r IngestResult) String() string {
	if r.Status == IngestSkipped {
		return "[skipped] " + r.Reason
	}
	return fmt.Sprintf("[ok] %s (%d chunks)", r.Reason, r.Chunks)
}

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a session history. Messages are never modified after
// they have been appended.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ChatMessage represents a single turn sent to a chat model.
type ChatMessage struct {
	Role    Role
	Content string
}

// Prompt is the structured input of a chat completion: system instructions,
// the retrieved context, recent history and the user's question.
type Prompt struct {
	System  string
	Context string
	History string
	Input   string
}

// Messages renders the prompt as the system + user message pair a chat model expects.
func (p Prompt) Messages() []ChatMessage {
	var sys strings.Builder
	sys.WriteString(p.System)
	sys.WriteString("\nReference material:\n")
	sys.WriteString(p.Context)
	sys.WriteString("\nConversation history:\n")
	sys.WriteString(p.History)

	return []ChatMessage{
		{Role: RoleSystem, Content: sys.String()},
		{Role: RoleUser, Content: "Current question: " + p.Input},
	}
}

// String renders the whole prompt as plain text, for models without a chat API
// and for debug logging.
func (p Prompt) String() string {
	var sb strings.Builder
	for _, m := range p.Messages() {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
