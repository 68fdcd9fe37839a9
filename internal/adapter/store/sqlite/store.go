// Package sqlite provides the durable ports.Store on top of SQLite.
// It uses the pure-Go modernc.org/sqlite driver, so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// schemaVersion is recorded in PRAGMA user_version once the tables exist.
const schemaVersion = 1

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA temp_store = MEMORY",
}

// Store implements ports.Store with one SQLite table per partition.
//
// The database is opened lazily on first use. Concurrent first callers wait
// for the same in-flight open and share its result. A failed open is not
// cached: the next call tries again.
//
// Thread-safe: All operations are safe for concurrent use.
type Store struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	db      *sql.DB
	opening *openAttempt
	closed  bool

	// beforeOpen, when set, runs at the start of every open. Tests use it to
	// hold an open in flight.
	beforeOpen func(ctx context.Context)
}

type openAttempt struct {
	done chan struct{}
	db   *sql.DB
	err  error
	// abandoned is set when the open failed because the opener's context ended.
	abandoned bool
}

// NewStore creates a store backed by the database file at path.
// A leading "~/" is expanded to the user's home directory. Nothing is opened yet.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}
}

// handle returns the open database, opening it if needed.
//
// A caller that waited on another caller's open retries when that open was
// abandoned because the opener's context ended, as long as its own context
// is still live.
func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, domain.ErrStoreClosed
		}
		if s.db != nil {
			db := s.db
			s.mu.Unlock()
			return db, nil
		}
		if attempt := s.opening; attempt != nil {
			s.mu.Unlock()
			select {
			case <-attempt.done:
				if attempt.abandoned && ctx.Err() == nil {
					s.logger.Debug().Err(attempt.err).Msg("shared open abandoned, retrying")
					continue
				}
				return attempt.db, attempt.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attempt := &openAttempt{done: make(chan struct{})}
		s.opening = attempt
		s.mu.Unlock()

		db, err := s.open(ctx)

		s.mu.Lock()
		s.opening = nil
		if err == nil && s.closed {
			_ = db.Close()
			db, err = nil, domain.ErrStoreClosed
		}
		if err == nil {
			s.db = db
		}
		attempt.db, attempt.err = db, err
		attempt.abandoned = err != nil && ctx.Err() != nil
		close(attempt.done)
		s.mu.Unlock()

		return db, err
	}
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if s.beforeOpen != nil {
		s.beforeOpen(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := expandHome(s.path)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	s.logger.Debug().Str("path", path).Msg("store opened")
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to set pragma %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range ports.Partitions {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				key     TEXT PRIMARY KEY,
				value   BLOB NOT NULL,
				blob    BLOB,
				sort_at INTEGER NOT NULL DEFAULT 0
			)`, p),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sort_at ON %s (sort_at)`, p, p),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "failed to create partition %s", p)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Put upserts a record.
func (s *Store) Put(ctx context.Context, partition ports.Partition, record ports.Record) error {
	if !partition.Valid() {
		return domain.NewStorageError("put", string(partition), record.Key, domain.ErrUnknownPartition)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return domain.NewStorageError("put", string(partition), record.Key, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, value, blob, sort_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, blob = excluded.blob, sort_at = excluded.sort_at`, partition)
	if _, err := db.ExecContext(ctx, query, record.Key, record.Value, record.Blob, toUnix(record.SortAt)); err != nil {
		return domain.NewStorageError("put", string(partition), record.Key, err)
	}
	return nil
}

// Get returns the record for key.
func (s *Store) Get(ctx context.Context, partition ports.Partition, key string) (ports.Record, bool, error) {
	if !partition.Valid() {
		return ports.Record{}, false, domain.NewStorageError("get", string(partition), key, domain.ErrUnknownPartition)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return ports.Record{}, false, domain.NewStorageError("get", string(partition), key, err)
	}

	query := fmt.Sprintf(`SELECT key, value, blob, sort_at FROM %s WHERE key = ?`, partition)
	rec, err := scanRecord(db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Record{}, false, nil
	}
	if err != nil {
		return ports.Record{}, false, domain.NewStorageError("get", string(partition), key, err)
	}
	return rec, true, nil
}

// GetAll returns all records of the partition in index order.
func (s *Store) GetAll(ctx context.Context, partition ports.Partition) ([]ports.Record, error) {
	if !partition.Valid() {
		return nil, domain.NewStorageError("get_all", string(partition), "", domain.ErrUnknownPartition)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return nil, domain.NewStorageError("get_all", string(partition), "", err)
	}

	order := "sort_at, key"
	if partition == ports.PartitionSettings {
		order = "key"
	}
	query := fmt.Sprintf(`SELECT key, value, blob, sort_at FROM %s ORDER BY %s`, partition, order)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("get_all", string(partition), "", err)
	}
	defer rows.Close()

	records := make([]ports.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.NewStorageError("get_all", string(partition), "", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("get_all", string(partition), "", err)
	}
	return records, nil
}

// Delete removes the record for key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, partition ports.Partition, key string) error {
	if !partition.Valid() {
		return domain.NewStorageError("delete", string(partition), key, domain.ErrUnknownPartition)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return domain.NewStorageError("delete", string(partition), key, err)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, partition)
	if _, err := db.ExecContext(ctx, query, key); err != nil {
		return domain.NewStorageError("delete", string(partition), key, err)
	}
	return nil
}

// Close closes the database if it was opened. Later calls fail with domain.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ports.Record, error) {
	var (
		rec    ports.Record
		sortAt int64
	)
	if err := row.Scan(&rec.Key, &rec.Value, &rec.Blob, &sortAt); err != nil {
		return ports.Record{}, err
	}
	rec.SortAt = fromUnix(sortAt)
	return rec, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, path[2:]), nil
}

// Verify that Store implements the Store interface
var _ ports.Store = (*Store)(nil)
