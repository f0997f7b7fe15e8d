// Package ports defines interfaces for external dependencies.
// Clean Architecture: usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatCompleter produces a complete (non-streamed) answer for a structured prompt.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt entities.Prompt) (string, error)
}

// VectorIndex stores chunks with their embeddings and answers similarity queries.
// Implementations own the embedder: Add computes one vector per chunk, Search
// embeds the query text.
type VectorIndex interface {
	// Add embeds and stores all chunks as one batch. Either every chunk is
	// stored or an error is returned.
	Add(ctx context.Context, chunks []entities.Chunk) error

	// Search returns up to topK chunks most similar to query, best first.
	Search(ctx context.Context, query string, topK int) ([]entities.SearchResult, error)
}

// ContentLedger remembers fingerprints of content that was fully ingested.
type ContentLedger interface {
	// Exists reports whether fingerprint was recorded before.
	Exists(ctx context.Context, fingerprint string) (bool, error)

	// Record appends fingerprint. Recording a known fingerprint is allowed.
	Record(ctx context.Context, fingerprint string) error
}

// HistoryStore keeps a bounded, ordered message log per session and persists
// it to durable storage.
type HistoryStore interface {
	Append(sessionID string, role entities.Role, content string, metadata map[string]string) entities.Message
	History(sessionID string, limit int) []entities.Message
	Formatted(sessionID string, limit int) string
	Clear(sessionID string) error
	Persist(sessionID string) error
	Restore(sessionID string) error
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// Recorder receives operational measurements from the usecases.
type Recorder interface {
	IngestFinished(status entities.IngestStatus, chunks int)
	IngestFailed()
	AskFinished(outcome string, elapsed time.Duration)
}

// NopRecorder discards every measurement.
type NopRecorder struct{}

func (NopRecorder) IngestFinished(entities.IngestStatus, int) {}
func (NopRecorder) IngestFailed()                             {}
func (NopRecorder) AskFinished(string, time.Duration)         {}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
