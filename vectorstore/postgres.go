package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// pgEntry is the GORM model backing PgVectorStore. The table is created
// with an HNSW index over embedding using cosine ops (see Migrate), and
// every query predicate includes project_id and kind so cross-project
// isolation holds at the SQL level, not just in application code.
type pgEntry struct {
	ID        uint64 `gorm:"primaryKey"`
	ProjectID string `gorm:"column:project_id;index:idx_pg_entry_scope,priority:1"`
	Kind      string `gorm:"column:kind;index:idx_pg_entry_scope,priority:2"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector"`
	Data      string          `gorm:"column:data"`
	Model     string          `gorm:"column:model"`
	TokensIn  int             `gorm:"column:tokens_input"`
	TokensOut int             `gorm:"column:tokens_output"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

// TableName pins the model to the schema's semantic cache table.
func (pgEntry) TableName() string { return "semantic_cache_pgvector" }

// PgVectorStore is a VectorStore backed by Postgres + pgvector, used in
// production for the semantic cache (spec §4.4/§4.5).
type PgVectorStore struct {
	db *gorm.DB
}

// NewPgVectorStore creates a PgVectorStore over an existing *gorm.DB.
func NewPgVectorStore(db *gorm.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// Migrate creates the pgvector extension, the backing table, and its HNSW
// cosine-distance index. Safe to call repeatedly.
func (s *PgVectorStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS semantic_cache_pgvector (
			id BIGSERIAL PRIMARY KEY,
			project_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			embedding vector NOT NULL,
			data TEXT NOT NULL,
			model TEXT NOT NULL,
			tokens_input INTEGER NOT NULL DEFAULT 0,
			tokens_output INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_cache_scope ON semantic_cache_pgvector (project_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_cache_embedding ON semantic_cache_pgvector USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("vectorstore: migrate: %w", err)
		}
	}
	return nil
}

// Upsert implements VectorStore.
func (s *PgVectorStore) Upsert(ctx context.Context, entry Entry) error {
	return s.UpsertBatch(ctx, []Entry{entry})
}

// UpsertBatch implements VectorStore.
func (s *PgVectorStore) UpsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]pgEntry, len(entries))
	for i, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		rows[i] = pgEntry{
			ProjectID: e.Project,
			Kind:      e.Kind,
			Embedding: pgvector.NewVector(e.Embedding),
			Data:      e.Payload,
			Model:     e.Model,
			TokensIn:  e.TokensIn,
			TokensOut: e.TokensOut,
			CreatedAt: created,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("vectorstore: upsert batch: %w", err)
	}
	return nil
}

// Query implements VectorStore. project and kind are bound as SQL
// parameters on every invocation — there is no code path that can query
// across projects.
func (s *PgVectorStore) Query(ctx context.Context, project, kind string, embedding []float32, threshold float64, limit int) ([]Hit, error) {
	vec := pgvector.NewVector(embedding)

	var rows []struct {
		pgEntry
		Similarity float64 `gorm:"column:similarity"`
	}

	err := s.db.WithContext(ctx).
		Table("semantic_cache_pgvector").
		Select("*, 1 - (embedding <=> ?) AS similarity", vec).
		Where("project_id = ? AND kind = ?", project, kind).
		Where("1 - (embedding <=> ?) >= ?", vec, threshold).
		Order("embedding <=> ?", vec).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}

	hits := make([]Hit, len(rows))
	for i, r := range rows {
		hits[i] = Hit{
			Entry: Entry{
				Project:   r.ProjectID,
				Kind:      r.Kind,
				Embedding: r.Embedding.Slice(),
				Payload:   r.Data,
				Model:     r.Model,
				TokensIn:  r.TokensIn,
				TokensOut: r.TokensOut,
				CreatedAt: r.CreatedAt,
			},
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}
