package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// InMemoryVectorStore is a sync.RWMutex-guarded slice-scan implementation,
// used in tests and by the server when the vector database is disabled in
// configuration. Grounded on rag/vector_store.go's InMemoryVectorStore.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryVectorStore creates an empty InMemoryVectorStore.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{}
}

// Upsert implements VectorStore.
func (s *InMemoryVectorStore) Upsert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// UpsertBatch implements VectorStore.
func (s *InMemoryVectorStore) UpsertBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// Query implements VectorStore. The (project, kind) filter is applied
// before similarity scoring, so an entry stored under another project can
// never surface regardless of its embedding's similarity.
func (s *InMemoryVectorStore) Query(_ context.Context, project, kind string, embedding []float32, threshold float64, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for _, e := range s.entries {
		if e.Project != project || e.Kind != kind {
			continue
		}
		sim := cosineSimilarity(embedding, e.Embedding)
		if sim >= threshold {
			hits = append(hits, Hit{Entry: e, Similarity: sim})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the total number of stored entries, for tests.
func (s *InMemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
