package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/mediastore"
)

// NewRegistry opens and reconciles a job registry in a temp directory.
func NewRegistry(t testing.TB) *jobs.Registry {
	t.Helper()
	reg, err := jobs.Open(filepath.Join(t.TempDir(), "jobs.json"), logging.NewNop())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	if _, err := reg.LoadAndReconcile(context.Background()); err != nil {
		t.Fatalf("reconcile registry: %v", err)
	}
	return reg
}

// MustOpenMediaStore opens the metadata database at path and closes it
// when the test ends.
func MustOpenMediaStore(t testing.TB, path string) *mediastore.Store {
	t.Helper()
	store, err := mediastore.Open(path)
	if err != nil {
		t.Fatalf("open media store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
