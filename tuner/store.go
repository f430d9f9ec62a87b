package tuner

import (
	"context"

	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/types"
)

// GormThresholdStore is a ThresholdStore backed by GORM.
type GormThresholdStore struct {
	db *gorm.DB
}

// NewGormThresholdStore creates a GormThresholdStore.
func NewGormThresholdStore(db *gorm.DB) *GormThresholdStore {
	return &GormThresholdStore{db: db}
}

// CacheThreshold implements ThresholdStore.
func (s *GormThresholdStore) CacheThreshold(ctx context.Context, project string) (float64, error) {
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

// UpdateCacheThreshold implements ThresholdStore.
func (s *GormThresholdStore) UpdateCacheThreshold(ctx context.Context, project string, threshold float64) error {
	return s.db.WithContext(ctx).
		Model(&types.Project{}).
		Where("id = ?", project).
		Update("cache_threshold", threshold).Error
}
