package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cod-e-Codes/clack/config"
)

// ErrFileNotFound is returned by FileStore.Get for unknown names.
var ErrFileNotFound = errors.New("staged file not found")

// StagedFile is an upload to be written to the staging area.
type StagedFile struct {
	Name      string
	Owner     string
	SessionID string
	Contents  []byte
}

// StoredFile describes a file held in the staging area.
type StoredFile struct {
	Name     string    `json:"name"`
	Owner    string    `json:"owner,omitempty"`
	Size     int64     `json:"size"`
	Digest   string    `json:"digest"`
	StoredAt time.Time `json:"stored_at"`
}

// FileStore is the staging area for uploaded files. Files are keyed by base
// name; a later Put with the same name replaces the earlier one atomically.
// Implementations must be safe for concurrent use.
type FileStore interface {
	Put(ctx context.Context, f StagedFile) (StoredFile, error)
	Get(ctx context.Context, name string) (StoredFile, []byte, error)
	// Prune removes files stored before the given time and reports how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewFileStore opens the staging backend selected by cfg.Store.
func NewFileStore(ctx context.Context, cfg *config.Config) (FileStore, error) {
	var (
		store FileStore
		err   error
	)

	switch cfg.Store {
	case config.StoreDir:
		store, err = NewDirStore(cfg.StagingDir)
	case config.StoreSQLite:
		store, err = NewSQLiteStore(ctx, cfg.DBPath)
	case config.StorePostgres:
		store, err = NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}

	StoreLogger.Info("File store ready", map[string]interface{}{"store": cfg.Store})
	return store, nil
}
