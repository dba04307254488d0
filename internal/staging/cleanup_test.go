package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelsmith/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func makeDir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := os.WriteFile(filepath.Join(path, "frame.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestCleanStaleRemovesOldScratchOnly(t *testing.T) {
	tmpDir := t.TempDir()

	oldJob := filepath.Join(tmpDir, "job-1234abcd-999")
	oldStitch := filepath.Join(tmpDir, "stitch-42")
	recentJob := filepath.Join(tmpDir, "job-feedbeef-1")
	foreign := filepath.Join(tmpDir, "someone-else")
	makeDir(t, oldJob, 2*time.Hour)
	makeDir(t, oldStitch, 3*time.Hour)
	makeDir(t, recentJob, 0)
	makeDir(t, foreign, 5*time.Hour)

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	for _, gone := range []string{oldJob, oldStitch} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", gone)
		}
	}
	for _, kept := range []string{recentJob, foreign} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("%s should still exist: %v", kept, err)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	makeDir(t, filepath.Join(tmpDir, "concat-7"), 0)
	makeDir(t, filepath.Join(tmpDir, "unrelated"), 0)

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Name != "concat-7" {
		t.Fatalf("unexpected dirs: %+v", dirs)
	}
	if dirs[0].Size != 3 {
		t.Errorf("size = %d, want 3", dirs[0].Size)
	}
}

func TestIsScratch(t *testing.T) {
	cases := map[string]bool{
		"job-abc":    true,
		"stitch-1":   true,
		"concat-2":   true,
		"jobs":       false,
		"frames-tmp": false,
	}
	for name, want := range cases {
		if got := IsScratch(name); got != want {
			t.Errorf("IsScratch(%q) = %v, want %v", name, got, want)
		}
	}
}
