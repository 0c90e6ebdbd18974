package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/google/uuid"
)

const partSuffix = ".part"

// DirStore keeps staged files as plain files in one directory. Writes go to
// a unique temporary file first and are renamed into place.
type DirStore struct {
	dir string
}

// NewDirStore creates a store in dir, creating the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

func (d *DirStore) Put(ctx context.Context, f StagedFile) (StoredFile, error) {
	name, err := shared.BaseFileName(f.Name)
	if err != nil {
		return StoredFile{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}

	tmp := filepath.Join(d.dir, fmt.Sprintf(".%s-%s%s", f.SessionID, uuid.NewString(), partSuffix))
	if err := writeFileSync(tmp, f.Contents); err != nil {
		_ = os.Remove(tmp)
		return StoredFile{}, fmt.Errorf("failed to write %s: %w", name, err)
	}

	target := filepath.Join(d.dir, name)
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return StoredFile{}, fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	info, err := os.Stat(target)
	storedAt := time.Now()
	if err == nil {
		storedAt = info.ModTime()
	}

	return StoredFile{
		Name:     name,
		Owner:    f.Owner,
		Size:     int64(len(f.Contents)),
		Digest:   shared.Digest(f.Contents),
		StoredAt: storedAt,
	}, nil
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (d *DirStore) Get(ctx context.Context, name string) (StoredFile, []byte, error) {
	base, err := shared.BaseFileName(name)
	if err != nil || strings.HasSuffix(base, partSuffix) {
		return StoredFile{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	file, err := os.Open(filepath.Join(d.dir, base))
	if errors.Is(err, fs.ErrNotExist) {
		return StoredFile{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, base)
	}
	if err != nil {
		return StoredFile{}, nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return StoredFile{}, nil, err
	}
	var buf bytes.Buffer
	digest, size, err := shared.DigestReader(io.TeeReader(file, &buf))
	if err != nil {
		return StoredFile{}, nil, err
	}

	return StoredFile{
		Name:     base,
		Size:     size,
		Digest:   digest,
		StoredAt: info.ModTime(),
	}, buf.Bytes(), nil
}

// Prune removes staged files, and abandoned temporary files, last modified
// before the cutoff.
func (d *DirStore) Prune(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			StoreLogger.Warn("Failed to prune staged file", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if !strings.HasSuffix(entry.Name(), partSuffix) {
			removed++
		}
	}
	return removed, nil
}

func (d *DirStore) Ping(ctx context.Context) error {
	info, err := os.Stat(d.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.dir)
	}
	return nil
}

func (d *DirStore) Close() error { return nil }
