package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// SQLiteSchema contains the SQL statements to create the task database
// schema on SQLite.
const SQLiteSchema = `
-- Requirement tasks table
CREATE TABLE IF NOT EXISTS requirement_tasks (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    repository_url TEXT NOT NULL,
    branch TEXT NOT NULL,
    requirement_text TEXT NOT NULL,
    priority TEXT NOT NULL,
    additional_context TEXT,
    language TEXT NOT NULL,
    output_path TEXT,
    template_id TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    progress REAL NOT NULL DEFAULT 0,
    details TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Quality metrics, at most one row per task (re-checks overwrite)
CREATE TABLE IF NOT EXISTS quality_metrics (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL UNIQUE,
    code_quality_score REAL NOT NULL,
    requirement_coverage_score REAL NOT NULL,
    syntax_validity_score REAL NOT NULL,
    static_analysis TEXT,
    feedback TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (task_id) REFERENCES requirement_tasks(id)
);

-- Code templates, upserted by name
CREATE TABLE IF NOT EXISTS code_templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    language TEXT NOT NULL,
    description TEXT,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_requirement_tasks_project_id ON requirement_tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_requirement_tasks_status ON requirement_tasks(status);
CREATE INDEX IF NOT EXISTS idx_requirement_tasks_created_at ON requirement_tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_quality_metrics_task_id ON quality_metrics(task_id);
`

// PostgresSchema contains the SQL statements to create the task database
// schema on PostgreSQL.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS requirement_tasks (
    id UUID PRIMARY KEY,
    project_id TEXT NOT NULL,
    repository_url TEXT NOT NULL,
    branch TEXT NOT NULL,
    requirement_text TEXT NOT NULL,
    priority TEXT NOT NULL,
    additional_context TEXT,
    language TEXT NOT NULL,
    output_path TEXT,
    template_id UUID,
    status TEXT NOT NULL DEFAULT 'pending',
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    details JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS quality_metrics (
    id UUID PRIMARY KEY,
    task_id UUID NOT NULL UNIQUE REFERENCES requirement_tasks(id),
    code_quality_score DOUBLE PRECISION NOT NULL,
    requirement_coverage_score DOUBLE PRECISION NOT NULL,
    syntax_validity_score DOUBLE PRECISION NOT NULL,
    static_analysis JSONB,
    feedback TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS code_templates (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    language TEXT NOT NULL,
    description TEXT,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requirement_tasks_project_id ON requirement_tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_requirement_tasks_status ON requirement_tasks(status);
CREATE INDEX IF NOT EXISTS idx_requirement_tasks_created_at ON requirement_tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_quality_metrics_task_id ON quality_metrics(task_id);
`

// insertSchemaVersionSQLite records the schema version, once.
const insertSchemaVersionSQLite = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// insertSchemaVersionPostgres records the schema version, once.
const insertSchemaVersionPostgres = `
INSERT INTO schema_version (version, applied_at)
VALUES ($1, now())
ON CONFLICT (version) DO NOTHING;
`

// getSchemaVersion retrieves the latest schema version.
const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
