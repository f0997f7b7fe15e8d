// Package history provides the conversation history store: bounded per-session
// message logs kept in memory and persisted as one JSON file per session.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// DefaultMaxHistory is the per-session message cap used when none is configured.
const DefaultMaxHistory = 10

// FileStore implements ports.HistoryStore.
//
// The session map is guarded by mu. Disk writes for one session are serialized
// by that session's own lock, so different sessions persist in parallel.
type FileStore struct {
	dir        string
	maxHistory int
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string][]entities.Message

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewFileStore creates a store persisting under dir, creating it if needed.
func NewFileStore(dir string, maxHistory int) (*FileStore, error) {
	if dir == "" {
		dir = "./data/conversation_history"
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, entities.NewError(entities.KindStorage, "create history directory", err)
	}
	return &FileStore{
		dir:        dir,
		maxHistory: maxHistory,
		now:        time.Now,
		sessions:   make(map[string][]entities.Message),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Append adds a message to the session and evicts the oldest ones beyond the cap.
// Timestamps never go backwards within a session.
func (s *FileStore) Append(sessionID string, role entities.Role, content string, metadata map[string]string) entities.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	ts := s.now()
	if n := len(msgs); n > 0 && ts.Before(msgs[n-1].Timestamp) {
		ts = msgs[n-1].Timestamp
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	msg := entities.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
		Metadata:  meta,
	}

	msgs = append(msgs, msg)
	s.sessions[sessionID] = s.trim(msgs)
	return msg.Clone()
}

// History returns copies of the last limit messages (all if limit <= 0), oldest first.
func (s *FileStore) History(sessionID string, limit int) []entities.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]entities.Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, m.Clone())
	}
	return out
}

// Formatted renders the history as "role: content" lines, or entities.NoHistory.
func (s *FileStore) Formatted(sessionID string, limit int) string {
	msgs := s.History(sessionID, limit)
	if len(msgs) == 0 {
		return entities.NoHistory
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}

// Clear empties the session in memory and removes its file.
func (s *FileStore) Clear(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return entities.NewError(entities.KindStorage, "remove history of "+sessionID, err)
	}
	return nil
}

// Persist overwrites the session's file with its full in-memory history. A
// session that has never been used has nothing to persist.
func (s *FileStore) Persist(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, known := s.sessions[sessionID]
	s.mu.RUnlock()
	if !known {
		return nil
	}

	data, err := json.MarshalIndent(s.History(sessionID, 0), "", "  ")
	if err != nil {
		return entities.NewError(entities.KindStorage, "encode history of "+sessionID, err)
	}
	if err := writeFileAtomic(s.path(sessionID), data); err != nil {
		return entities.NewError(entities.KindStorage, "write history of "+sessionID, err)
	}
	return nil
}

// Restore replaces the in-memory session with the persisted one. A missing
// file leaves memory untouched; a malformed one is a KindDeserialization error
// and also leaves memory untouched.
func (s *FileStore) Restore(sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return entities.NewError(entities.KindStorage, "read history of "+sessionID, err)
	}

	msgs, err := decode(data)
	if err != nil {
		return entities.NewError(entities.KindDeserialization, "decode history of "+sessionID, err)
	}

	s.mu.Lock()
	s.sessions[sessionID] = s.trim(msgs)
	s.mu.Unlock()
	return nil
}

func decode(data []byte) ([]entities.Message, error) {
	var msgs []entities.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	for i := range msgs {
		m := &msgs[i]
		if m.Role != entities.RoleUser && m.Role != entities.RoleAssistant {
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if m.Metadata == nil {
			m.Metadata = map[string]string{}
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if i > 0 && m.Timestamp.Before(msgs[i-1].Timestamp) {
			m.Timestamp = msgs[i-1].Timestamp
		}
	}
	return msgs, nil
}

// trim keeps the newest maxHistory messages in a fresh backing array.
func (s *FileStore) trim(msgs []entities.Message) []entities.Message {
	if len(msgs) <= s.maxHistory {
		return msgs
	}
	kept := make([]entities.Message, s.maxHistory)
	copy(kept, msgs[len(msgs)-s.maxHistory:])
	return kept
}

func (s *FileStore) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, fileName(sessionID)+".json")
}

// fileName maps a session ID onto a file name that is valid on every platform.
// Bytes outside [a-z0-9_-] are written as %XX, so distinct IDs never share a
// file, even on case-insensitive file systems. The empty ID becomes "%".
func fileName(sessionID string) string {
	if sessionID == "" {
		return "%"
	}
	var sb strings.Builder
	for i := 0; i < len(sessionID); i++ {
		c := sessionID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}

// writeFileAtomic writes through a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
