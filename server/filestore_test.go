package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Cod-e-Codes/clack/config"
	"github.com/Cod-e-Codes/clack/shared"
)

// testFileStore runs the behaviour every FileStore backend must share.
func testFileStore(t *testing.T, store FileStore) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		stored, err := store.Put(ctx, StagedFile{
			Name:      "dir/report.txt",
			Owner:     "alice",
			SessionID: "s1",
			Contents:  []byte("quarterly numbers"),
		})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if stored.Name != "report.txt" {
			t.Errorf("Expected base name report.txt, got %s", stored.Name)
		}
		if stored.Size != int64(len("quarterly numbers")) {
			t.Errorf("Expected size %d, got %d", len("quarterly numbers"), stored.Size)
		}
		if stored.Digest != shared.Digest([]byte("quarterly numbers")) {
			t.Errorf("Unexpected digest %s", stored.Digest)
		}

		got, data, err := store.Get(ctx, "report.txt")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(data) != "quarterly numbers" {
			t.Errorf("Expected contents back, got %q", data)
		}
		if got.Digest != stored.Digest || got.Size != stored.Size {
			t.Errorf("Get metadata %+v does not match Put %+v", got, stored)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		if _, err := store.Put(ctx, StagedFile{Name: "notes", Owner: "a", SessionID: "s1", Contents: []byte("first")}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := store.Put(ctx, StagedFile{Name: "notes", Owner: "b", SessionID: "s2", Contents: []byte("second")}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		_, data, err := store.Get(ctx, "notes")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(data) != "second" {
			t.Errorf("Expected the later upload, got %q", data)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := store.Put(ctx, StagedFile{Name: "empty", Owner: "a", SessionID: "s1"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		f, data, err := store.Get(ctx, "empty")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if f.Size != 0 || len(data) != 0 {
			t.Errorf("Expected an empty file, got %d bytes", len(data))
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, _, err := store.Get(ctx, "no-such-file"); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("Expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		if _, err := store.Put(ctx, StagedFile{Name: "../", Contents: []byte("x")}); !errors.Is(err, shared.ErrInvalidFileName) {
			t.Errorf("Expected ErrInvalidFileName, got %v", err)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Put(ctx, StagedFile{
					Name:      "shared.bin",
					Owner:     "user",
					SessionID: string(rune('a' + i)),
					Contents:  []byte{byte(i)},
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("Concurrent Put failed: %v", err)
			}
		}
		_, data, err := store.Get(ctx, "shared.bin")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(data) != 1 || data[0] >= 8 {
			t.Errorf("Expected one complete upload, got %v", data)
		}
	})

	t.Run("Prune", func(t *testing.T) {
		if _, err := store.Put(ctx, StagedFile{Name: "old.txt", Owner: "a", SessionID: "s1", Contents: []byte("x")}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected nothing pruned for an old cutoff, got %d", n)
		}

		n, err = store.Prune(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		if n < 1 {
			t.Errorf("Expected files pruned, got %d", n)
		}
		if _, _, err := store.Get(ctx, "old.txt"); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("Expected old.txt pruned, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestDirStore(t *testing.T) {
	store, err := NewDirStore(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	defer store.Close()
	testFileStore(t, store)
}

func TestDirStore_IgnoresPartFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	ctx := context.Background()

	part := filepath.Join(dir, ".s1-abc.part")
	if err := os.WriteFile(part, []byte("half"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, _, err := store.Get(ctx, ".s1-abc.part"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected temporary files hidden, got %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(part, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Abandoned temporary files are not counted, got %d", n)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Errorf("Expected abandoned temporary file removed, got %v", err)
	}
}

func TestDirStore_LeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	if _, err := store.Put(context.Background(), StagedFile{Name: "a.txt", SessionID: "s1", Contents: []byte("a")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only a.txt, got %v", names)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()
	testFileStore(t, store)
}

func TestSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clack.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if _, err := store.Put(ctx, StagedFile{Name: "keep.txt", Owner: "a", SessionID: "s1", Contents: []byte("kept")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	f, data, err := reopened.Get(ctx, "keep.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "kept" || f.Owner != "a" {
		t.Errorf("Expected the stored file to survive a reopen, got %+v %q", f, data)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("CLACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CLACK_TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer store.Close()
	testFileStore(t, store)
}

func TestNewFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"dir", config.Config{Store: config.StoreDir, StagingDir: filepath.Join(dir, "staging")}, false},
		{"sqlite", config.Config{Store: config.StoreSQLite, DBPath: filepath.Join(dir, "clack.db")}, false},
		{"unknown", config.Config{Store: "tape"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewFileStore(ctx, &tt.cfg)
			if tt.wantErr {
				if err == nil {
					store.Close()
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFileStore failed: %v", err)
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				t.Errorf("Ping failed: %v", err)
			}
		})
	}
}
