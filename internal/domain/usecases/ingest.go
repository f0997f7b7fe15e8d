// Package usecases contains application business rules.
// Clean Architecture: usecases orchestrate entities and depend on port interfaces.
package usecases

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// ErrEmptyDocument is returned when there is no text to ingest.
var ErrEmptyDocument = errors.New("document has no text")

// IngestConfig holds the chunking parameters of the ingestor.
type IngestConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	Separators         []string
	MaxSplitCharNumber int // texts up to this many runes are stored as one chunk; 0 splits every text
	Operator           string
}

// IngestUseCase turns raw text into indexed chunks, at most once per distinct content.
type IngestUseCase struct {
	index         ports.VectorIndex
	ledger        ports.ContentLedger
	splitter      *RecursiveSplitter
	maxSplitChars int
	operator      string
	recorder      ports.Recorder
	log           logrus.FieldLogger
	now           func() time.Time

	// inflight serializes ingestions of the same content, so that the
	// Exists, Add and Record steps of one fingerprint never interleave.
	inflight keyedMutex
}

// IngestOption customizes an IngestUseCase.
type IngestOption func(*IngestUseCase)

// WithIngestRecorder reports ingestion outcomes to r.
func WithIngestRecorder(r ports.Recorder) IngestOption {
	return func(uc *IngestUseCase) { uc.recorder = r }
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l logrus.FieldLogger) IngestOption {
	return func(uc *IngestUseCase) { uc.log = l }
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(index ports.VectorIndex, ledger ports.ContentLedger, cfg IngestConfig, opts ...IngestOption) *IngestUseCase {
	if cfg.MaxSplitCharNumber < 0 {
		cfg.MaxSplitCharNumber = 0
	}
	if cfg.Operator == "" {
		cfg.Operator = "ragchat"
	}
	uc := &IngestUseCase{
		index:         index,
		ledger:        ledger,
		splitter:      NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators),
		maxSplitChars: cfg.MaxSplitCharNumber,
		operator:      cfg.Operator,
		recorder:      ports.NopRecorder{},
		log:           logrus.StandardLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Fingerprint returns the hex MD5 digest used as the deduplication key of text.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest stores text in the vector index unless identical content was ingested
// before. The fingerprint is recorded only after the whole batch was accepted
// by the index, so a failed ingestion can simply be retried.
func (uc *IngestUseCase) Ingest(ctx context.Context, text, source string) (entities.IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		uc.recorder.IngestFailed()
		return entities.IngestResult{}, entities.NewError(entities.KindIngestion, "ingest "+source, ErrEmptyDocument)
	}

	fp := Fingerprint(text)
	log := uc.log.WithFields(logrus.Fields{"source": source, "fingerprint": fp})

	unlock := uc.inflight.lock(fp)
	defer unlock()

	seen, err := uc.ledger.Exists(ctx, fp)
	if err != nil {
		uc.recorder.IngestFailed()
		return entities.IngestResult{}, asStorageError("check ledger", err)
	}
	if seen {
		log.Debug("content already ingested, skipping")
		uc.recorder.IngestFinished(entities.IngestSkipped, 0)
		return entities.IngestResult{
			Status:      entities.IngestSkipped,
			Reason:      "content is already in the knowledge base",
			Fingerprint: fp,
		}, nil
	}

	chunks := uc.chunk(text, source, fp)
	if err := uc.index.Add(ctx, chunks); err != nil {
		uc.recorder.IngestFailed()
		return entities.IngestResult{}, entities.NewError(entities.KindIngestion, "add chunks of "+source, err)
	}

	if err := uc.ledger.Record(ctx, fp); err != nil {
		uc.recorder.IngestFailed()
		return entities.IngestResult{}, asStorageError("record fingerprint", err)
	}

	log.WithField("chunks", len(chunks)).Info("content ingested")
	uc.recorder.IngestFinished(entities.IngestIngested, len(chunks))
	return entities.IngestResult{
		Status:      entities.IngestIngested,
		Reason:      "content loaded into the vector index",
		Fingerprint: fp,
		Chunks:      len(chunks),
	}, nil
}

// IngestDocument ingests a loaded document, using its name as provenance.
func (uc *IngestUseCase) IngestDocument(ctx context.Context, doc *entities.Document) (entities.IngestResult, error) {
	return uc.Ingest(ctx, doc.Content, doc.Name)
}

// chunk splits text (when it is long enough to benefit) and tags every piece.
func (uc *IngestUseCase) chunk(text, source, fp string) []entities.Chunk {
	pieces := []string{text}
	if utf8.RuneCountInString(text) > uc.maxSplitChars {
		pieces = uc.splitter.Split(text)
	}

	meta := entities.ChunkMetadata{
		Source:      source,
		CreateTime:  uc.now(),
		Operator:    uc.operator,
		Fingerprint: fp,
	}
	chunks := make([]entities.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = entities.Chunk{
			ID:       uuid.NewString(),
			Content:  p,
			Index:    i,
			Metadata: meta,
		}
	}
	return chunks
}

// asStorageError keeps typed errors from the adapters and classifies the rest.
func asStorageError(op string, err error) error {
	var typed *entities.Error
	if errors.As(err, &typed) {
		return err
	}
	return entities.NewError(entities.KindStorage, op, err)
}

// keyedMutex hands out one mutex per key. Entries are dropped once no caller
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
