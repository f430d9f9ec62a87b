package pipeline

import (
	"context"

	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/types"
)

// ProjectStore resolves a project's semantic cache similarity threshold.
// Backed by the same opaque external relational store as
// credential.APIKeyStore (spec §1).
type ProjectStore interface {
	CacheThreshold(ctx context.Context, project string) (float64, error)
}

// GormProjectStore is a ProjectStore backed by GORM.
type GormProjectStore struct {
	db *gorm.DB
}

// NewGormProjectStore creates a GormProjectStore.
func NewGormProjectStore(db *gorm.DB) *GormProjectStore {
	return &GormProjectStore{db: db}
}

// CacheThreshold implements ProjectStore. Unknown projects get the
// default threshold rather than an error — the credential resolver is
// the sole authority on whether a project is legitimate.
func (s *GormProjectStore) CacheThreshold(ctx context.Context, project string) (float64, error) {
	var p types.Project
	err := s.db.WithContext(ctx).Where("id = ?", project).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return types.DefaultCacheThreshold, nil
	}
	if err != nil {
		return types.DefaultCacheThreshold, err
	}
	return p.CacheThreshold, nil
}
