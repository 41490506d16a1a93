package runstore

const schema = `
CREATE TABLE IF NOT EXISTS batch_runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    phase TEXT NOT NULL,
    total INTEGER NOT NULL,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at ON batch_runs(started_at);

CREATE TABLE IF NOT EXISTS job_records (
    run_id TEXT NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    item_kind TEXT NOT NULL,
    item_id TEXT NOT NULL,
    group_id TEXT,
    label TEXT,
    status TEXT NOT NULL,
    error TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS merges (
    id TEXT PRIMARY KEY,
    source_ids TEXT NOT NULL,
    dedupe BOOLEAN NOT NULL,
    delete_sources BOOLEAN NOT NULL,
    success BOOLEAN NOT NULL,
    error TEXT,
    total_messages INTEGER DEFAULT 0,
    deduplicated_messages INTEGER DEFAULT 0,
    output_paths TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merges_created_at ON merges(created_at);
`
