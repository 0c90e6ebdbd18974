package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS staged_files (
	name TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	session_id TEXT NOT NULL,
	size INTEGER NOT NULL,
	digest TEXT NOT NULL,
	contents BLOB NOT NULL,
	stored_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staged_files_stored_at ON staged_files(stored_at);
`

// SQLiteStore keeps staged files in an SQLite table. stored_at is held as
// Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// An in-memory database exists per connection, and SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, f StagedFile) (StoredFile, error) {
	name, err := shared.BaseFileName(f.Name)
	if err != nil {
		return StoredFile{}, err
	}

	stored := StoredFile{
		Name:     name,
		Owner:    f.Owner,
		Size:     int64(len(f.Contents)),
		Digest:   shared.Digest(f.Contents),
		StoredAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO staged_files (name, owner, session_id, size, digest, contents, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			session_id = excluded.session_id,
			size = excluded.size,
			digest = excluded.digest,
			contents = excluded.contents,
			stored_at = excluded.stored_at`,
		stored.Name, stored.Owner, f.SessionID, stored.Size, stored.Digest, nonNil(f.Contents), stored.StoredAt.UnixNano())
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to store %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return StoredFile{}, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return stored, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (StoredFile, []byte, error) {
	var (
		f        StoredFile
		contents []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, owner, size, digest, contents, stored_at FROM staged_files WHERE name = ?`, name).
		Scan(&f.Name, &f.Owner, &f.Size, &f.Digest, &contents, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredFile{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return StoredFile{}, nil, err
	}
	f.StoredAt = time.Unix(0, storedAt).UTC()
	return f, contents, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM staged_files WHERE stored_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune staged files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// nonNil keeps empty uploads from being stored as NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
