package preflight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass with zero minimum, got %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<40); result.Passed {
		t.Fatalf("expected failure for an exabyte minimum, got %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, math.MaxUint64); result.Passed {
		t.Fatalf("expected failure for the largest minimum, got %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestRunAllChecksConfiguredDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.MediaDir = filepath.Join(root, "media")
	cfg.Paths.TempDir = filepath.Join(root, "tmp")
	cfg.Media.MinFreeGiB = 0
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected media and temp to fail, got %#v", failed)
	}
}

func TestCheckProviderCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Replicate.APIToken = "r8"
	cfg.Vertex.ProjectID = "proj"
	cfg.Vertex.TokenCommand = "gcloud auth print-access-token"

	byName := map[string]Result{}
	for _, r := range CheckProviderCredentials(&cfg) {
		byName[r.Name] = r
	}
	if !byName["Replicate"].Passed || byName["WaveSpeed"].Passed || !byName["Vertex"].Passed {
		t.Fatalf("unexpected credential results %#v", byName)
	}
	if byName["ElevenLabs"].Detail != "missing api key" {
		t.Fatalf("unexpected detail %q", byName["ElevenLabs"].Detail)
	}
}
