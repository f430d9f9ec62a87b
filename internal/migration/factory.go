package migration

import (
	"fmt"

	appconfig "github.com/gatewayflow/gatewayflow/config"
)

// NewMigratorFromConfig creates a new migrator from application configuration
func NewMigratorFromConfig(cfg *appconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig creates a new migrator from database
// configuration. Gatewayflow's relational store is Postgres-only (spec
// §6), so unlike the teacher's multi-driver dispatch this always builds
// a Postgres URL from DatabaseConfig.DSN's fields.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbURL := BuildDatabaseURL(
		DatabaseTypePostgres,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.Name,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.SSLMode,
	)

	migCfg := &Config{
		DatabaseType: DatabaseTypePostgres,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	}

	return NewMigrator(migCfg)
}

// NewMigratorFromURL creates a new migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
