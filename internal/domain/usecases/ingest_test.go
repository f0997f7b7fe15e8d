package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

func newTestIngest(index *mockIndex, ledger *mockLedger, cfg IngestConfig) (*IngestUseCase, *countingRecorder) {
	rec := &countingRecorder{}
	uc := NewIngestUseCase(index, ledger, cfg, WithIngestRecorder(rec), WithIngestLogger(quietLogger()))
	return uc, rec
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", Fingerprint("hello world"))
	assert.Equal(t, Fingerprint("same"), Fingerprint("same"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}

func TestIngestUseCase_DeduplicatesIdenticalContent(t *testing.T) {
	index := &mockIndex{}
	ledger := &mockLedger{}
	uc, rec := newTestIngest(index, ledger, IngestConfig{})
	ctx := context.Background()

	first, err := uc.Ingest(ctx, "hello world", "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, entities.IngestIngested, first.Status)
	assert.Equal(t, 1, first.Chunks)

	second, err := uc.Ingest(ctx, "hello world", "copy-of-greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, entities.IngestSkipped, second.Status)
	assert.True(t, strings.HasPrefix(second.String(), "[skipped]"))

	assert.Equal(t, []string{Fingerprint("hello world")}, ledger.entries)
	assert.Equal(t, 1, index.adds)
	assert.Len(t, index.chunks, 1)
	assert.Equal(t, 1, rec.ingested)
	assert.Equal(t, 1, rec.skipped)
}

func TestIngestUseCase_ConcurrentIdenticalContent(t *testing.T) {
	// A slow index widens the window between the ledger lookup and the record.
	index := &mockIndex{addFn: func([]entities.Chunk) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	ledger := &mockLedger{}
	uc, rec := newTestIngest(index, ledger, IngestConfig{})

	const callers = 8
	var wg sync.WaitGroup
	statuses := make([]entities.IngestStatus, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := uc.Ingest(context.Background(), "the same handbook", "copy.txt")
			assert.NoError(t, err)
			statuses[i] = res.Status
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, index.adds)
	assert.Len(t, ledger.entries, 1)
	assert.Equal(t, 1, rec.ingested)
	assert.Equal(t, callers-1, rec.skipped)

	ingested := 0
	for _, s := range statuses {
		if s == entities.IngestIngested {
			ingested++
		}
	}
	assert.Equal(t, 1, ingested)
	assert.Empty(t, uc.inflight.locks)
}

func TestIngestUseCase_DistinctContentIsNotSerialized(t *testing.T) {
	release := make(chan struct{})
	index := &mockIndex{addFn: func(chunks []entities.Chunk) error {
		if chunks[0].Content == "blocked" {
			<-release
		}
		return nil
	}}
	uc, _ := newTestIngest(index, &mockLedger{}, IngestConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := uc.Ingest(context.Background(), "blocked", "a.txt")
		done <- err
	}()

	res, err := uc.Ingest(context.Background(), "free", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, entities.IngestIngested, res.Status)

	close(release)
	require.NoError(t, <-done)
}

func TestIngestUseCase_MetadataOnEveryChunk(t *testing.T) {
	index := &mockIndex{}
	uc, _ := newTestIngest(index, &mockLedger{}, IngestConfig{ChunkSize: 50, ChunkOverlap: 10, MaxSplitCharNumber: 60, Operator: "RM"})
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)
	uc.now = func() time.Time { return fixed }

	text := strings.Repeat("Sizes run large. Pick one size down. ", 6)
	res, err := uc.Ingest(context.Background(), text, "sizes.txt")
	require.NoError(t, err)
	require.Greater(t, res.Chunks, 1)
	require.Len(t, index.chunks, res.Chunks)

	ids := map[string]bool{}
	for i, c := range index.chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "sizes.txt", c.Metadata.Source)
		assert.Equal(t, "RM", c.Metadata.Operator)
		assert.Equal(t, fixed, c.Metadata.CreateTime)
		assert.Equal(t, Fingerprint(text), c.Metadata.Fingerprint)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 50)
		assert.False(t, ids[c.ID], "chunk IDs must be unique")
		ids[c.ID] = true
	}
}

func TestIngestUseCase_ShortTextIsOneChunk(t *testing.T) {
	index := &mockIndex{}
	uc, _ := newTestIngest(index, &mockLedger{}, IngestConfig{ChunkSize: 10, ChunkOverlap: 2, MaxSplitCharNumber: 100})

	text := "This text is longer than ten runes but below the split threshold."
	res, err := uc.Ingest(context.Background(), text, "short.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, text, index.chunks[0].Content)
}

func TestIngestUseCase_IndexFailureRecordsNothing(t *testing.T) {
	boom := errors.New("index unavailable")
	index := &mockIndex{addFn: func([]entities.Chunk) error { return boom }}
	ledger := &mockLedger{}
	uc, rec := newTestIngest(index, ledger, IngestConfig{})

	_, err := uc.Ingest(context.Background(), "hello world", "greeting.txt")
	require.Error(t, err)
	assert.True(t, entities.IsKind(err, entities.KindIngestion))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, ledger.entries)
	assert.Equal(t, 1, rec.failed)

	// Once the index recovers the same content goes through.
	index.addFn = nil
	res, err := uc.Ingest(context.Background(), "hello world", "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, entities.IngestIngested, res.Status)
}

func TestIngestUseCase_LedgerFailureIsStorageError(t *testing.T) {
	index := &mockIndex{}
	ledger := &mockLedger{existsFn: func(string) (bool, error) { return false, errors.New("disk gone") }}
	uc, _ := newTestIngest(index, ledger, IngestConfig{})

	_, err := uc.Ingest(context.Background(), "hello world", "greeting.txt")
	require.Error(t, err)
	assert.True(t, entities.IsKind(err, entities.KindStorage))
	assert.Zero(t, index.adds)
}

func TestIngestUseCase_RecordFailureKeepsTypedError(t *testing.T) {
	typed := entities.NewError(entities.KindStorage, "append ledger", errors.New("read-only"))
	ledger := &mockLedger{recordFn: func(string) error { return typed }}
	uc, _ := newTestIngest(&mockIndex{}, ledger, IngestConfig{})

	_, err := uc.Ingest(context.Background(), "hello world", "greeting.txt")
	assert.Equal(t, typed, err)
}

func TestIngestUseCase_EmptyDocument(t *testing.T) {
	index := &mockIndex{}
	uc, _ := newTestIngest(index, &mockLedger{}, IngestConfig{})

	for _, text := range []string{"", "   \n\t"} {
		_, err := uc.Ingest(context.Background(), text, "empty.txt")
		assert.ErrorIs(t, err, ErrEmptyDocument)
		assert.True(t, entities.IsKind(err, entities.KindIngestion))
	}
	assert.Zero(t, index.adds)
}

func TestIngestUseCase_IngestDocumentUsesName(t *testing.T) {
	index := &mockIndex{}
	uc, _ := newTestIngest(index, &mockLedger{}, IngestConfig{})

	doc := &entities.Document{ID: "doc-1", Name: "faq.md", Path: "/kb/faq.md", Content: "Q: returns? A: 30 days."}
	_, err := uc.IngestDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "faq.md", index.chunks[0].Metadata.Source)
}
