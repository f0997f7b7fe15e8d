package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// ErrEmptyQuery is returned when a blank question is asked.
var ErrEmptyQuery = errors.New("query is empty")

// Answerer is the part of RetrievalChain the service needs.
type Answerer interface {
	Run(ctx context.Context, query string) (string, error)
}

// RagService binds one session to its history and retrieval chain.
type RagService struct {
	mu        sync.Mutex // serializes turns of this session
	sessionID string
	history   ports.HistoryStore
	chain     Answerer
	recorder  ports.Recorder
	log       logrus.FieldLogger
}

// ServiceOption customizes a RagService.
type ServiceOption func(*RagService)

// WithServiceRecorder reports ask outcomes to r.
func WithServiceRecorder(r ports.Recorder) ServiceOption {
	return func(s *RagService) { s.recorder = r }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *RagService) { s.log = l }
}

// NewRagService creates the service and restores any persisted history for
// sessionID. An unreadable history file is logged and treated as absent.
func NewRagService(sessionID string, history ports.HistoryStore, chain Answerer, opts ...ServiceOption) *RagService {
	s := &RagService{
		sessionID: sessionID,
		history:   history,
		chain:     chain,
		recorder:  ports.NopRecorder{},
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("session", sessionID)

	if err := history.Restore(sessionID); err != nil {
		s.log.WithError(err).Warn("could not restore conversation history, starting without it")
	} else {
		s.log.WithField("messages", len(history.History(sessionID, 0))).Debug("session ready")
	}
	return s
}

// SessionID returns the session this service is bound to.
func (s *RagService) SessionID() string { return s.sessionID }

// AskWithHistory records the question, answers it with the retrieval chain,
// records the answer and persists the session.
//
// The returned text is always something to show the user. When answering fails
// it is entities.FallbackAnswer and err describes the failure; the question
// stays in the (persisted) history but no assistant message is added for it.
func (s *RagService) AskWithHistory(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return entities.FallbackAnswer, ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.history.Append(s.sessionID, entities.RoleUser, query, map[string]string{"type": "query"})

	answer, err := s.chain.Run(ctx, query)
	if err != nil {
		s.log.WithError(err).Error("answering failed")
		if perr := s.history.Persist(s.sessionID); perr != nil {
			s.log.WithError(perr).Error("could not persist history")
		}
		s.recorder.AskFinished(outcome(err), time.Since(start))
		return entities.FallbackAnswer, err
	}

	s.history.Append(s.sessionID, entities.RoleAssistant, answer, map[string]string{"type": "response"})
	if err := s.history.Persist(s.sessionID); err != nil {
		s.log.WithError(err).Error("could not persist history")
		s.recorder.AskFinished("storage_error", time.Since(start))
		return answer, err
	}

	s.recorder.AskFinished("ok", time.Since(start))
	return answer, nil
}

// History returns the last limit messages (all when limit <= 0), oldest first.
func (s *RagService) History(limit int) []entities.Message {
	return s.history.History(s.sessionID, limit)
}

// FormattedHistory renders the last limit messages as "role: content" lines.
func (s *RagService) FormattedHistory(limit int) string {
	return s.history.Formatted(s.sessionID, limit)
}

// ClearHistory forgets the session, in memory and on disk.
func (s *RagService) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clear(s.sessionID)
}

func outcome(err error) string {
	switch {
	case entities.IsKind(err, entities.KindRetrieval):
		return "retrieval_error"
	case entities.IsKind(err, entities.KindCompletion):
		return "completion_error"
	default:
		return "error"
	}
}
