package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/echoleads/echoleads-go/internal/storage"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { storage.CloseDB(db) })

	return storage.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if err := store.Set(ctx, storage.KeyAccessToken, "token-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "token-1" {
		t.Errorf("Get() = %q, want token-1", got)
	}
}

func TestStoreSetReplaces(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, storage.KeyAccessToken, "token-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, storage.KeyAccessToken, "token-2"); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	got, err := store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "token-2" {
		t.Errorf("Get() = %q, want the replaced value token-2", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUserProfile} {
		if err := store.Set(ctx, key, "v"); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}

	if err := store.Delete(ctx, storage.KeyAccessToken, storage.KeyRefreshToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, storage.KeyAccessToken); !errors.Is(err, storage.ErrNotFound) {
		t.Error("access token survived deletion")
	}
	if _, err := store.Get(ctx, storage.KeyUserProfile); err != nil {
		t.Error("untargeted key was deleted")
	}

	// Deleting absent keys is not an error.
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Errorf("Delete() with no keys error = %v", err)
	}
}

func TestStoreVacuum(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if err := store.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum() error = %v", err)
	}
}
