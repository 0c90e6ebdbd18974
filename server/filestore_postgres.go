package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS staged_files (
	name TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	session_id TEXT NOT NULL,
	size BIGINT NOT NULL,
	digest TEXT NOT NULL,
	contents BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staged_files_stored_at ON staged_files(stored_at);
`

// PostgresStore keeps staged files in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Put(ctx context.Context, f StagedFile) (StoredFile, error) {
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

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO staged_files (name, owner, session_id, size, digest, contents, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			session_id = EXCLUDED.session_id,
			size = EXCLUDED.size,
			digest = EXCLUDED.digest,
			contents = EXCLUDED.contents,
			stored_at = EXCLUDED.stored_at`,
		stored.Name, stored.Owner, f.SessionID, stored.Size, stored.Digest, nonNil(f.Contents), stored.StoredAt)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to store %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return StoredFile{}, fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return stored, nil
}

func (p *PostgresStore) Get(ctx context.Context, name string) (StoredFile, []byte, error) {
	var (
		f        StoredFile
		contents []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT name, owner, size, digest, contents, stored_at FROM staged_files WHERE name = $1`, name).
		Scan(&f.Name, &f.Owner, &f.Size, &f.Digest, &contents, &f.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredFile{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return StoredFile{}, nil, err
	}
	return f, contents, nil
}

func (p *PostgresStore) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM staged_files WHERE stored_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune staged files: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
