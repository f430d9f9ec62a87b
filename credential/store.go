package credential

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/types"
)

// APIKeyStore resolves an opaque API key to the project id that owns it.
// Backed by the external relational store (spec §1: "treated as an opaque
// key-value for project metadata"); gatewayflow never inspects its schema
// beyond this one lookup.
type APIKeyStore interface {
	ResolveProjectID(ctx context.Context, apiKey string) (string, error)
}

// CredentialStore loads and updates ProviderCredential rows.
type CredentialStore interface {
	// ActiveCredential returns the highest-priority active credential for
	// (project, provider), or nil if none exists.
	ActiveCredential(ctx context.Context, project string, provider types.Provider) (*types.ProviderCredential, error)
	// TouchLastUsed records that a credential was used. Resolver calls it
	// from its background drain goroutine, off the request path.
	TouchLastUsed(ctx context.Context, credentialID uint) error
}

// GormCredentialStore is a CredentialStore backed by GORM.
type GormCredentialStore struct {
	db *gorm.DB
}

// NewGormCredentialStore creates a GormCredentialStore.
func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

// ActiveCredential implements CredentialStore.
func (s *GormCredentialStore) ActiveCredential(ctx context.Context, project string, provider types.Provider) (*types.ProviderCredential, error) {
	var cred types.ProviderCredential
	err := s.db.WithContext(ctx).
		Where("project = ? AND provider = ? AND active = ?", project, provider, true).
		Order("priority ASC").
		First(&cred).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// TouchLastUsed implements CredentialStore.
func (s *GormCredentialStore) TouchLastUsed(ctx context.Context, credentialID uint) error {
	return s.db.WithContext(ctx).
		Model(&types.ProviderCredential{}).
		Where("id = ?", credentialID).
		Update("last_used_at", time.Now()).Error
}

// apiKeyRow is the persisted shape of an opaque project API key. The
// gateway only ever reads key -> project, never the key's own history,
// so this stays a single flat row rather than a richer issuance record.
type apiKeyRow struct {
	Key     string `gorm:"primaryKey;column:api_key"`
	Project string `gorm:"column:project;index"`
	Active  bool   `gorm:"column:active"`
}

// TableName satisfies gorm.Tabler.
func (apiKeyRow) TableName() string { return "api_keys" }

// GormAPIKeyStore is an APIKeyStore backed by GORM.
type GormAPIKeyStore struct {
	db *gorm.DB
}

// NewGormAPIKeyStore creates a GormAPIKeyStore.
func NewGormAPIKeyStore(db *gorm.DB) *GormAPIKeyStore {
	return &GormAPIKeyStore{db: db}
}

// AutoMigrate creates or updates the tables backing GormAPIKeyStore and
// GormCredentialStore.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&apiKeyRow{}, &types.ProviderCredential{}, &types.Project{})
}

// ResolveProjectID implements APIKeyStore. An unknown or inactive key
// resolves to "", matching credential.Resolver's treatment of an empty
// project as unauthorized rather than returning a distinct not-found
// error every caller would have to special-case.
func (s *GormAPIKeyStore) ResolveProjectID(ctx context.Context, apiKey string) (string, error) {
	var row apiKeyRow
	err := s.db.WithContext(ctx).Where("api_key = ? AND active = ?", apiKey, true).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Project, nil
}
