// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openlead/kestrel/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecord upserts a record with tenant isolation.
func (r *SQLRepository) SaveRecord(ctx context.Context, tenantID string, rec *domain.Record) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	attributes, _ := json.Marshal(rec.Attributes)

	processed := 0
	if rec.Processed {
		processed = 1
	}

	query := `
		INSERT INTO records (
			id, tenant_id, email, domain, company, country, ip,
			category, priority, processed, description, display_name,
			attributes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			email = excluded.email,
			domain = excluded.domain,
			company = excluded.company,
			country = excluded.country,
			ip = excluded.ip,
			category = excluded.category,
			priority = excluded.priority,
			processed = excluded.processed,
			description = excluded.description,
			display_name = excluded.display_name,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Email, rec.Domain, rec.Company,
		rec.Country, rec.IP, rec.Category, rec.Priority, processed,
		rec.Description, rec.DisplayName, string(attributes),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return &domain.StorageError{Op: "save record", Err: err}
	}
	return nil
}

const recordColumns = `id, tenant_id, email, domain, company, country, ip,
	category, priority, processed, description, display_name,
	attributes, created_at, updated_at`

// GetRecord retrieves a record by ID with tenant isolation.
func (r *SQLRepository) GetRecord(ctx context.Context, tenantID string, id string) (*domain.Record, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE tenant_id = ? AND id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get record", Err: err}
	}
	return rec, nil
}

// ListRecords retrieves all records for a tenant ordered by identifier.
func (r *SQLRepository) ListRecords(ctx context.Context, tenantID string) ([]*domain.Record, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE tenant_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list records", Err: err}
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "list records", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list records", Err: err}
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var processed int
	var attributes string

	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Email, &rec.Domain, &rec.Company,
		&rec.Country, &rec.IP, &rec.Category, &rec.Priority, &processed,
		&rec.Description, &rec.DisplayName, &attributes,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Processed = processed != 0
	if attributes != "" && attributes != "null" {
		json.Unmarshal([]byte(attributes), &rec.Attributes)
	}
	return &rec, nil
}

// ApplyBulkPatch updates whitelisted fields on every identifier in a single
// transaction. Missing identifiers are collected, not fatal. When nothing
// matches the transaction rolls back so no write is observable.
func (r *SQLRepository) ApplyBulkPatch(ctx context.Context, tenantID string, ids []string, fields map[string]interface{}) (*domain.BulkApplyOutcome, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(ids) == 0 || len(fields) == 0 {
		return nil, fmt.Errorf("%w: identifiers and fields are required", ErrInvalidInput)
	}

	// Deterministic column order keeps the statement stable across calls.
	columns := make([]string, 0, len(fields))
	for col := range fields {
		if !domain.PatchFieldWhitelist[col] {
			return nil, fmt.Errorf("%w: field %q is not patchable", ErrInvalidInput, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var setClauses []string
	var args []interface{}
	for _, col := range columns {
		setClauses = append(setClauses, col+" = ?")
		value := fields[col]
		if b, ok := value.(bool); ok {
			if b {
				value = 1
			} else {
				value = 0
			}
		}
		args = append(args, value)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC())

	query := r.rebind(fmt.Sprintf(
		"UPDATE records SET %s WHERE tenant_id = ? AND id = ?",
		strings.Join(setClauses, ", "),
	))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "begin bulk patch", Err: err}
	}

	outcome := &domain.BulkApplyOutcome{}
	for _, id := range ids {
		rowArgs := append(append([]interface{}{}, args...), tenantID, id)
		res, err := tx.ExecContext(ctx, query, rowArgs...)
		if err != nil {
			tx.Rollback()
			return nil, &domain.StorageError{Op: "bulk patch", Err: err}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return nil, &domain.StorageError{Op: "bulk patch", Err: err}
		}
		if affected == 0 {
			outcome.Missing = append(outcome.Missing, id)
		} else {
			outcome.Updated = append(outcome.Updated, id)
		}
	}

	// All targets missing: roll back so the store is untouched.
	if len(outcome.Updated) == 0 {
		tx.Rollback()
		return outcome, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.StorageError{Op: "commit bulk patch", Err: err}
	}
	return outcome, nil
}

// SaveRuleConfig upserts a rule configuration document.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, cfg *domain.StoredConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			name, tenant_id, version, fingerprint, document, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, tenant_id) DO UPDATE SET
			version = excluded.version,
			fingerprint = excluded.fingerprint,
			document = excluded.document,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cfg.Name, tenantID, cfg.Version, cfg.Fingerprint,
		string(cfg.Document), enabled, now, now,
	)
	if err != nil {
		return &domain.StorageError{Op: "save rule config", Err: err}
	}
	return nil
}

// GetRuleConfig retrieves a rule configuration by name.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, name string) (*domain.StoredConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT name, tenant_id, version, fingerprint, document, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND name = ?
	`

	var cfg domain.StoredConfig
	var document string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, name).Scan(
		&cfg.Name, &cfg.TenantID, &cfg.Version, &cfg.Fingerprint,
		&document, &enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get rule config", Err: err}
	}

	cfg.Document = []byte(document)
	cfg.Enabled = enabled != 0
	return &cfg, nil
}

// ListRuleConfigs retrieves every configuration for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.StoredConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT name, tenant_id, version, fingerprint, document, enabled
		FROM rule_configs
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list rule configs", Err: err}
	}
	defer rows.Close()

	var configs []*domain.StoredConfig
	for rows.Next() {
		var cfg domain.StoredConfig
		var document string
		var enabled int
		if err := rows.Scan(
			&cfg.Name, &cfg.TenantID, &cfg.Version, &cfg.Fingerprint,
			&document, &enabled,
		); err != nil {
			return nil, &domain.StorageError{Op: "list rule configs", Err: err}
		}
		cfg.Document = []byte(document)
		cfg.Enabled = enabled != 0
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// SaveBatchReport stores a batch scoring report.
func (r *SQLRepository) SaveBatchReport(ctx context.Context, tenantID string, report *domain.BatchReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	results, _ := json.Marshal(report.Results)
	tierCounts, _ := json.Marshal(report.TierCounts)

	query := `
		INSERT INTO batch_reports (
			id, tenant_id, config_fingerprint, results, tier_counts,
			cache_hits, cache_misses, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.ConfigFingerprint,
		string(results), string(tierCounts),
		report.CacheHits, report.CacheMisses,
		report.StartedAt, report.Duration.Milliseconds(),
	)
	if err != nil {
		return &domain.StorageError{Op: "save batch report", Err: err}
	}
	return nil
}

// GetBatchReport retrieves a batch report by ID.
func (r *SQLRepository) GetBatchReport(ctx context.Context, tenantID string, id string) (*domain.BatchReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, config_fingerprint, results, tier_counts,
			   cache_hits, cache_misses, started_at, duration_ms
		FROM batch_reports
		WHERE tenant_id = ? AND id = ?
	`

	var report domain.BatchReport
	var results, tierCounts string
	var durationMs int64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&report.ID, &report.TenantID, &report.ConfigFingerprint,
		&results, &tierCounts,
		&report.CacheHits, &report.CacheMisses,
		&report.StartedAt, &durationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get batch report", Err: err}
	}

	json.Unmarshal([]byte(results), &report.Results)
	json.Unmarshal([]byte(tierCounts), &report.TierCounts)
	report.Duration = time.Duration(durationMs) * time.Millisecond
	return &report, nil
}

// Ping verifies database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
