package vectorstore

import "context"

// NullVectorStore is a valid, always-empty VectorStore. Every Query returns
// no hits and every Upsert is a silent no-op. The server does not construct
// it: a disabled vector database gets an InMemoryVectorStore instead.
type NullVectorStore struct{}

// NewNullVectorStore creates a NullVectorStore.
func NewNullVectorStore() *NullVectorStore {
	return &NullVectorStore{}
}

// Upsert implements VectorStore.
func (NullVectorStore) Upsert(context.Context, Entry) error { return nil }

// UpsertBatch implements VectorStore.
func (NullVectorStore) UpsertBatch(context.Context, []Entry) error { return nil }

// Query implements VectorStore.
func (NullVectorStore) Query(context.Context, string, string, []float32, float64, int) ([]Hit, error) {
	return nil, nil
}
