package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'error',
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    duration_seconds REAL DEFAULT 0,
    tokens_prompt INTEGER DEFAULT 0,
    tokens_completion INTEGER DEFAULT 0,
    tokens_tool INTEGER DEFAULT 0,
    cost_usd REAL DEFAULT 0,
    patch_applied BOOLEAN DEFAULT FALSE,
    failure_reason TEXT,
    artifacts_dir TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
