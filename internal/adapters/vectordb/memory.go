package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// InMemoryIndex is a non-persistent ports.VectorIndex.
type InMemoryIndex struct {
	mu       sync.RWMutex
	embedder ports.Embedder
	chunks   []entities.Chunk
	ids      map[string]int // chunkID -> position in chunks
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex(embedder ports.Embedder) *InMemoryIndex {
	return &InMemoryIndex{
		embedder: embedder,
		ids:      make(map[string]int),
	}
}

// Add embeds all chunks and stores them; nothing is stored if embedding fails.
func (s *InMemoryIndex) Add(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	embedded, err := embedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range embedded {
		if pos, ok := s.ids[chunk.ID]; ok {
			s.chunks[pos] = chunk
			continue
		}
		s.ids[chunk.ID] = len(s.chunks)
		s.chunks = append(s.chunks, chunk)
	}
	return nil
}

// Search finds the topK chunks most similar to query.
func (s *InMemoryIndex) Search(ctx context.Context, query string, topK int) ([]entities.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return rank(vec, s.chunks, topK), nil
}
