package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"procwatch/collector"
)

// SQLite persists a capture session to a standalone database file. The file
// is self-describing: one row per sample, NULL columns for fields that were
// absent at capture time.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the SQLite file at dbPath and creates the
// samples table if it does not exist. The caller must call Close() when
// done with the store.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	// The modernc.org driver is pure Go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_fk=1", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	// Timestamps are stored as Unix nanoseconds so a restored session is
	// bit-identical to what was captured.
	const stmt = `
CREATE TABLE IF NOT EXISTS samples (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    ts_unix_nanos    INTEGER NOT NULL,
    cpu_percent      REAL NOT NULL,
    memory_bytes     INTEGER NOT NULL,
    disk_read_bytes  INTEGER,
    disk_write_bytes INTEGER,
    tag              TEXT
);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts_unix_nanos);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create samples table: %w", err)
	}
	s.log.Debug("sqlite migration applied")
	return nil
}

// Save stores the whole history in a single transaction.
func (s *SQLite) Save(ctx context.Context, samples []collector.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO samples (ts_unix_nanos, cpu_percent, memory_bytes,
                     disk_read_bytes, disk_write_bytes, tag)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		var rd, wr sql.NullInt64
		if smp.DiskReadBytes != nil {
			rd = sql.NullInt64{Int64: int64(*smp.DiskReadBytes), Valid: true}
		}
		if smp.DiskWriteBytes != nil {
			wr = sql.NullInt64{Int64: int64(*smp.DiskWriteBytes), Valid: true}
		}
		var tag sql.NullString
		if smp.Tag != "" {
			tag = sql.NullString{String: smp.Tag, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			smp.Timestamp.UnixNano(), smp.CPUPercent, int64(smp.MemoryBytes),
			rd, wr, tag); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.log.Debug("session persisted", zap.Int("samples", len(samples)))
	return nil
}

// Load reads every persisted sample back in capture order.
func (s *SQLite) Load(ctx context.Context) ([]collector.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ts_unix_nanos, cpu_percent, memory_bytes,
       disk_read_bytes, disk_write_bytes, tag
FROM samples
ORDER BY ts_unix_nanos, id`)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []collector.Sample
	for rows.Next() {
		var (
			nanos  int64
			cpu    float64
			mem    int64
			rd, wr sql.NullInt64
			tag    sql.NullString
		)
		if err := rows.Scan(&nanos, &cpu, &mem, &rd, &wr, &tag); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp := collector.Sample{
			Timestamp:   time.Unix(0, nanos).UTC(),
			CPUPercent:  cpu,
			MemoryBytes: uint64(mem),
		}
		if rd.Valid {
			v := uint64(rd.Int64)
			smp.DiskReadBytes = &v
		}
		if wr.Valid {
			v := uint64(wr.Int64)
			smp.DiskWriteBytes = &v
		}
		if tag.Valid {
			smp.Tag = tag.String
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
