package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    total_score REAL NOT NULL,
    risk_tier TEXT NOT NULL,
    auto_decline INTEGER NOT NULL DEFAULT 0,
    profile TEXT NOT NULL,
    score TEXT NOT NULL,
    offers TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_tier ON assessments(tenant_id, risk_tier);
`

const schemaRuleSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    document TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_sets_tenant ON rule_sets(tenant_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAssessments,
		schemaRuleSets,
	}
}
