package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRecords = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    email TEXT NOT NULL,
    domain TEXT NOT NULL,
    company TEXT,
    country TEXT,
    ip TEXT,
    category TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    description TEXT,
    display_name TEXT,
    attributes TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_records_domain ON records(tenant_id, domain);
CREATE INDEX IF NOT EXISTS idx_records_country ON records(tenant_id, country);
CREATE INDEX IF NOT EXISTS idx_records_processed ON records(tenant_id, processed);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    name TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    version TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    document TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_fingerprint ON rule_configs(tenant_id, fingerprint);
`

const schemaBatchReports = `
CREATE TABLE IF NOT EXISTS batch_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    config_fingerprint TEXT NOT NULL,
    results TEXT NOT NULL,
    tier_counts TEXT NOT NULL,
    cache_hits INTEGER NOT NULL DEFAULT 0,
    cache_misses INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_batch_reports_tenant ON batch_reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batch_reports_started ON batch_reports(tenant_id, started_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRecords,
		schemaRuleConfigs,
		schemaBatchReports,
	}
}
