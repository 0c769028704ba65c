package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore implements Store in a single SQLite database. Useful when the
// cache should live in one file (containers, shared volumes).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dir/cache.db,
// enables WAL mode and runs migrations.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			file_key   TEXT PRIMARY KEY,
			metadata   BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS cache_artifacts (
			file_key   TEXT    NOT NULL,
			screen_id  TEXT    NOT NULL,
			kind       TEXT    NOT NULL,
			data       BLOB    NOT NULL,
			size       INTEGER NOT NULL,
			updated_at TEXT    NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (file_key, screen_id, kind)
		);

		CREATE INDEX IF NOT EXISTS idx_cache_artifacts_file ON cache_artifacts(file_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReadMetadata returns the raw metadata bytes or ErrNotFound.
func (s *SQLiteStore) ReadMetadata(ctx context.Context, fileKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM cache_entries WHERE file_key = ?`, fileKey,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read metadata: %w", err)
	}
	return data, nil
}

// WriteMetadata upserts the metadata row.
func (s *SQLiteStore) WriteMetadata(ctx context.Context, fileKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (file_key, metadata, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(file_key) DO UPDATE SET metadata = excluded.metadata, updated_at = excluded.updated_at`,
		fileKey, data,
	)
	if err != nil {
		return fmt.Errorf("cache: write metadata: %w", err)
	}
	return nil
}

// ReadArtifact returns one artifact or ErrNotFound.
func (s *SQLiteStore) ReadArtifact(ctx context.Context, fileKey, screenID string, kind Kind) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM cache_artifacts WHERE file_key = ? AND screen_id = ? AND kind = ?`,
		fileKey, screenID, string(kind),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read artifact: %w", err)
	}
	return data, nil
}

// WriteArtifact upserts one artifact row.
func (s *SQLiteStore) WriteArtifact(ctx context.Context, fileKey, screenID string, kind Kind, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_artifacts (file_key, screen_id, kind, data, size, updated_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(file_key, screen_id, kind) DO UPDATE SET
		   data = excluded.data, size = excluded.size, updated_at = excluded.updated_at`,
		fileKey, screenID, string(kind), data, len(data),
	)
	if err != nil {
		return fmt.Errorf("cache: write artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns every artifact stored for fileKey.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, fileKey string) ([]ArtifactRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT screen_id, kind, size FROM cache_artifacts
		 WHERE file_key = ? ORDER BY screen_id, kind`, fileKey,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: list artifacts: %w", err)
	}
	defer rows.Close()

	var refs []ArtifactRef
	for rows.Next() {
		var ref ArtifactRef
		var kind string
		if err := rows.Scan(&ref.ScreenID, &kind, &ref.Size); err != nil {
			return nil, fmt.Errorf("cache: scan artifact: %w", err)
		}
		ref.Kind = Kind(kind)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Delete removes the entry and all its artifacts in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, fileKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_artifacts WHERE file_key = ?`, fileKey); err != nil {
		return fmt.Errorf("cache: delete artifacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE file_key = ?`, fileKey); err != nil {
		return fmt.Errorf("cache: delete entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit delete: %w", err)
	}
	return nil
}

// Keys lists every file key with metadata or artifacts.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_key FROM cache_entries
		 UNION
		 SELECT DISTINCT file_key FROM cache_artifacts
		 ORDER BY file_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("cache: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
