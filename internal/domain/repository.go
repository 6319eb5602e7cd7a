// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// BulkApplyOutcome is the per-identifier outcome of a transactional bulk
// patch at the storage layer.
type BulkApplyOutcome struct {
	Updated []string
	Missing []string
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Record operations
	SaveRecord(ctx context.Context, tenantID string, rec *Record) error
	GetRecord(ctx context.Context, tenantID string, id string) (*Record, error)
	ListRecords(ctx context.Context, tenantID string) ([]*Record, error)

	// ApplyBulkPatch updates the whitelisted fields on every identifier in
	// a single transaction. Missing identifiers are reported, not fatal.
	// When no identifier matches, nothing is written and the transaction
	// rolls back. A non-nil error means no write is observable.
	ApplyBulkPatch(ctx context.Context, tenantID string, ids []string, fields map[string]interface{}) (*BulkApplyOutcome, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, cfg *StoredConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, name string) (*StoredConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*StoredConfig, error)

	// Batch report operations
	SaveBatchReport(ctx context.Context, tenantID string, report *BatchReport) error
	GetBatchReport(ctx context.Context, tenantID string, id string) (*BatchReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
