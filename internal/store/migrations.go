package store

const schema = `
-- File system capacity from mmdf (30d retention)
CREATE TABLE IF NOT EXISTS fs_snapshots (
    ts          INTEGER NOT NULL,
    fs          TEXT    NOT NULL,
    total_bytes INTEGER NOT NULL,
    free_bytes  INTEGER NOT NULL,
    PRIMARY KEY (ts, fs)
) WITHOUT ROWID;

-- Storage pool capacity from mmdf (30d retention)
CREATE TABLE IF NOT EXISTS pool_snapshots (
    ts             INTEGER NOT NULL,
    fs             TEXT    NOT NULL,
    pool           TEXT    NOT NULL,
    total_bytes    INTEGER NOT NULL,
    free_bytes     INTEGER NOT NULL,
    max_disk_bytes INTEGER NOT NULL,
    PRIMARY KEY (ts, fs, pool)
) WITHOUT ROWID;

-- Quota usage from mmrepquota (30d retention)
CREATE TABLE IF NOT EXISTS quota_snapshots (
    ts          INTEGER NOT NULL,
    fs          TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    name        TEXT    NOT NULL,
    fileset     TEXT    NOT NULL DEFAULT '',
    block_usage INTEGER NOT NULL,
    block_soft  INTEGER NOT NULL,
    block_hard  INTEGER NOT NULL,
    files_usage INTEGER NOT NULL,
    PRIMARY KEY (ts, fs, kind, name, fileset)
) WITHOUT ROWID;

-- Pool throughput from the I/O aggregator (48h retention)
CREATE TABLE IF NOT EXISTS poolio_snapshots (
    ts              INTEGER NOT NULL,
    fs              TEXT    NOT NULL,
    pool            TEXT    NOT NULL,
    read_bytes_sec  REAL    NOT NULL,
    write_bytes_sec REAL    NOT NULL,
    reset_devices   INTEGER NOT NULL,
    PRIMARY KEY (ts, fs, pool)
) WITHOUT ROWID;

-- Alert log (30d retention)
CREATE TABLE IF NOT EXISTS alert_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    rule        TEXT    NOT NULL,
    subject     TEXT    NOT NULL,
    message     TEXT    NOT NULL,
    severity    TEXT    NOT NULL
);

-- Secondary indexes
CREATE INDEX IF NOT EXISTS idx_pool_series ON pool_snapshots(fs, pool, ts);
CREATE INDEX IF NOT EXISTS idx_poolio_series ON poolio_snapshots(fs, pool, ts);
CREATE INDEX IF NOT EXISTS idx_quota_fs ON quota_snapshots(fs, ts);
CREATE INDEX IF NOT EXISTS idx_alert_ts ON alert_log(ts);
`
