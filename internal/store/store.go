// Package store provides SQLite persistence for polled GPFS data. The
// daemon appends capacity, quota and pool throughput snapshots on every
// poll; the history queries average them into fixed-width buckets for
// trend output.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/poolio"
)

// Store wraps a SQLite database holding monitoring history.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertFsSnapshot records the file system totals of one capacity poll.
func (s *Store) InsertFsSnapshot(ts int64, fs string, total gpfs.DfTotal) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO fs_snapshots (ts, fs, total_bytes, free_bytes)
		VALUES (?, ?, ?, ?)`,
		ts, fs, int64(total.SizeBytes), int64(total.FreeBytes),
	)
	if err != nil {
		return fmt.Errorf("inserting fs snapshot: %w", err)
	}
	return nil
}

// InsertPoolSnapshot records one storage pool row of a capacity poll.
func (s *Store) InsertPoolSnapshot(ts int64, fs string, p gpfs.DfPool) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO pool_snapshots
		(ts, fs, pool, total_bytes, free_bytes, max_disk_bytes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, fs, p.Name, int64(p.SizeBytes), int64(p.FreeBytes), int64(p.MaxDiskSizeBytes),
	)
	if err != nil {
		return fmt.Errorf("inserting pool snapshot: %w", err)
	}
	return nil
}

// InsertQuotaSnapshot records one quota entry of a quota poll.
func (s *Store) InsertQuotaSnapshot(ts int64, e gpfs.QuotaEntry) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO quota_snapshots
		(ts, fs, kind, name, fileset, block_usage, block_soft, block_hard, files_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, e.Filesystem, string(e.Kind), e.Name, e.Fileset,
		e.BlockUsageBytes, int64(e.BlockQuotaBytes), int64(e.BlockLimitBytes), e.FilesUsage,
	)
	if err != nil {
		return fmt.Errorf("inserting quota snapshot: %w", err)
	}
	return nil
}

// InsertPoolIOSnapshot records the throughput of one pool group.
func (s *Store) InsertPoolIOSnapshot(ts int64, g poolio.Group) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO poolio_snapshots
		(ts, fs, pool, read_bytes_sec, write_bytes_sec, reset_devices)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, g.Filesystem, g.Pool, g.ReadBytesPerSec, g.WriteBytesPerSec, g.ResetDevices,
	)
	if err != nil {
		return fmt.Errorf("inserting poolio snapshot: %w", err)
	}
	return nil
}

// InsertAlert appends a fired alert to the alert log.
func (s *Store) InsertAlert(ts int64, rule, subject, message, severity string) error {
	_, err := s.db.Exec(`
		INSERT INTO alert_log (ts, rule, subject, message, severity)
		VALUES (?, ?, ?, ?, ?)`,
		ts, rule, subject, message, severity,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// CapacityPoint is one bucket-averaged sample of a capacity series.
type CapacityPoint struct {
	Timestamp  int64
	TotalBytes float64
	FreeBytes  float64
}

// RatePoint is one bucket-averaged sample of a pool throughput series.
type RatePoint struct {
	Timestamp        int64
	ReadBytesPerSec  float64
	WriteBytesPerSec float64
}

// QuotaPoint is one bucket-averaged sample of a quota usage series.
type QuotaPoint struct {
	Timestamp       int64
	BlockUsageBytes float64
	BlockLimitBytes float64
	FilesUsage      float64
}

// AlertRecord is one row of the alert log.
type AlertRecord struct {
	Timestamp int64
	Rule      string
	Subject   string
	Message   string
	Severity  string
}

// QueryFsHistory returns the capacity of one file system since the given
// Unix timestamp, averaged into buckets of the given width.
func (s *Store) QueryFsHistory(fs string, since int64, bucket time.Duration) ([]CapacityPoint, error) {
	step := bucketSeconds(bucket)
	rows, err := s.db.Query(`
		SELECT (ts / ?) * ?, AVG(total_bytes), AVG(free_bytes)
		FROM fs_snapshots
		WHERE fs = ? AND ts >= ?
		GROUP BY ts / ?
		ORDER BY 1 ASC`,
		step, step, fs, since, step,
	)
	if err != nil {
		return nil, fmt.Errorf("querying fs history: %w", err)
	}
	defer rows.Close()

	return scanCapacityPoints(rows)
}

// QueryPoolHistory returns the capacity of one storage pool since the
// given Unix timestamp, averaged into buckets of the given width.
func (s *Store) QueryPoolHistory(fs, pool string, since int64, bucket time.Duration) ([]CapacityPoint, error) {
	step := bucketSeconds(bucket)
	rows, err := s.db.Query(`
		SELECT (ts / ?) * ?, AVG(total_bytes), AVG(free_bytes)
		FROM pool_snapshots
		WHERE fs = ? AND pool = ? AND ts >= ?
		GROUP BY ts / ?
		ORDER BY 1 ASC`,
		step, step, fs, pool, since, step,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pool history: %w", err)
	}
	defer rows.Close()

	return scanCapacityPoints(rows)
}

// QueryPoolIOHistory returns the throughput of one pool group since the
// given Unix timestamp, averaged into buckets of the given width.
func (s *Store) QueryPoolIOHistory(fs, pool string, since int64, bucket time.Duration) ([]RatePoint, error) {
	step := bucketSeconds(bucket)
	rows, err := s.db.Query(`
		SELECT (ts / ?) * ?, AVG(read_bytes_sec), AVG(write_bytes_sec)
		FROM poolio_snapshots
		WHERE fs = ? AND pool = ? AND ts >= ?
		GROUP BY ts / ?
		ORDER BY 1 ASC`,
		step, step, fs, pool, since, step,
	)
	if err != nil {
		return nil, fmt.Errorf("querying poolio history: %w", err)
	}
	defer rows.Close()

	var points []RatePoint
	for rows.Next() {
		var p RatePoint
		if err := rows.Scan(&p.Timestamp, &p.ReadBytesPerSec, &p.WriteBytesPerSec); err != nil {
			return nil, fmt.Errorf("scanning rate point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// QueryQuotaHistory returns the usage of one quota subject since the
// given Unix timestamp, averaged into buckets of the given width. The
// fileset discriminator is part of the key; pass "" for filesystem-wide
// quotas.
func (s *Store) QueryQuotaHistory(fs, kind, name, fileset string, since int64, bucket time.Duration) ([]QuotaPoint, error) {
	step := bucketSeconds(bucket)
	rows, err := s.db.Query(`
		SELECT (ts / ?) * ?, AVG(block_usage), AVG(block_hard), AVG(files_usage)
		FROM quota_snapshots
		WHERE fs = ? AND kind = ? AND name = ? AND fileset = ? AND ts >= ?
		GROUP BY ts / ?
		ORDER BY 1 ASC`,
		step, step, fs, kind, name, fileset, since, step,
	)
	if err != nil {
		return nil, fmt.Errorf("querying quota history: %w", err)
	}
	defer rows.Close()

	var points []QuotaPoint
	for rows.Next() {
		var p QuotaPoint
		if err := rows.Scan(&p.Timestamp, &p.BlockUsageBytes, &p.BlockLimitBytes, &p.FilesUsage); err != nil {
			return nil, fmt.Errorf("scanning quota point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// QueryRecentAlerts returns alerts fired since the given Unix timestamp,
// newest first, capped at limit rows.
func (s *Store) QueryRecentAlerts(since int64, limit int) ([]AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT ts, rule, subject, message, severity
		FROM alert_log
		WHERE ts >= ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.Timestamp, &a.Rule, &a.Subject, &a.Message, &a.Severity); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanCapacityPoints(rows *sql.Rows) ([]CapacityPoint, error) {
	var points []CapacityPoint
	for rows.Next() {
		var p CapacityPoint
		if err := rows.Scan(&p.Timestamp, &p.TotalBytes, &p.FreeBytes); err != nil {
			return nil, fmt.Errorf("scanning capacity point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func bucketSeconds(bucket time.Duration) int64 {
	step := int64(bucket / time.Second)
	if step < 1 {
		step = 1
	}
	return step
}
