package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/logging"
)

func quietLogger() logrus.FieldLogger {
	return logging.Discard()
}

// mockIndex implements ports.VectorIndex for testing
type mockIndex struct {
	mu       sync.Mutex
	chunks   []entities.Chunk
	adds     int
	addFn    func(chunks []entities.Chunk) error
	searchFn func(query string, topK int) ([]entities.SearchResult, error)
}

func (m *mockIndex) Add(ctx context.Context, chunks []entities.Chunk) error {
	m.mu.Lock()
	m.adds++
	m.mu.Unlock()
	if m.addFn != nil {
		if err := m.addFn(chunks); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *mockIndex) Search(ctx context.Context, query string, topK int) ([]entities.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(query, topK)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []entities.SearchResult
	for i, c := range m.chunks {
		if i >= topK {
			break
		}
		results = append(results, entities.SearchResult{Chunk: c, Score: 0.9})
	}
	return results, nil
}

// mockLedger implements ports.ContentLedger in memory
type mockLedger struct {
	mu       sync.Mutex
	entries  []string
	existsFn func(fp string) (bool, error)
	recordFn func(fp string) error
}

func (m *mockLedger) Exists(ctx context.Context, fp string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(fp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e == fp {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLedger) Record(ctx context.Context, fp string) error {
	if m.recordFn != nil {
		return m.recordFn(fp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, fp)
	return nil
}

// mockCompleter implements ports.ChatCompleter for testing
type mockCompleter struct {
	prompts    []entities.Prompt
	completeFn func(prompt entities.Prompt) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt entities.Prompt) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.completeFn != nil {
		return m.completeFn(prompt)
	}
	return "mock answer", nil
}

// mockHistory implements ports.HistoryStore in memory
type mockHistory struct {
	mu        sync.Mutex
	max       int
	sessions  map[string][]entities.Message
	persisted map[string]int
	restoreFn func(sessionID string) error
	persistFn func(sessionID string) error
}

func newMockHistory(max int) *mockHistory {
	return &mockHistory{
		max:       max,
		sessions:  make(map[string][]entities.Message),
		persisted: make(map[string]int),
	}
}

func (m *mockHistory) Append(sessionID string, role entities.Role, content string, metadata map[string]string) entities.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := entities.Message{
		ID:        fmt.Sprintf("m%d", len(m.sessions[sessionID])),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	msgs := append(m.sessions[sessionID], msg)
	if m.max > 0 && len(msgs) > m.max {
		msgs = msgs[len(msgs)-m.max:]
	}
	m.sessions[sessionID] = msgs
	return msg
}

func (m *mockHistory) History(sessionID string, limit int) []entities.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]entities.Message(nil), msgs...)
}

func (m *mockHistory) Formatted(sessionID string, limit int) string {
	msgs := m.History(sessionID, limit)
	if len(msgs) == 0 {
		return entities.NoHistory
	}
	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = string(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

func (m *mockHistory) Clear(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *mockHistory) Persist(sessionID string) error {
	if m.persistFn != nil {
		if err := m.persistFn(sessionID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted[sessionID]++
	return nil
}

func (m *mockHistory) Restore(sessionID string) error {
	if m.restoreFn != nil {
		return m.restoreFn(sessionID)
	}
	return nil
}

// mockLoader implements ports.DocumentLoader from an in-memory file map
type mockLoader struct {
	files map[string]string
}

func (m *mockLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return &entities.Document{ID: path, Name: path, Path: path, Content: content}, nil
}

func (m *mockLoader) SupportedExtensions() []string { return []string{".txt"} }

// mockWatcher implements ports.FileWatcher with a channel fed by the test
type mockWatcher struct {
	events  chan ports.FileEvent
	watchFn func(dir string) error
}

func (m *mockWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if m.watchFn != nil {
		if err := m.watchFn(dir); err != nil {
			return nil, err
		}
	}
	return m.events, nil
}

func (m *mockWatcher) Stop() error { return nil }

// countingRecorder implements ports.Recorder
type countingRecorder struct {
	mu       sync.Mutex
	ingested int
	skipped  int
	failed   int
	chunks   int
	outcomes []string
}

func (r *countingRecorder) IngestFinished(status entities.IngestStatus, chunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == entities.IngestSkipped {
		r.skipped++
	} else {
		r.ingested++
	}
	r.chunks += chunks
}

func (r *countingRecorder) IngestFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *countingRecorder) AskFinished(outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
