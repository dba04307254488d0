package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/worker"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	reg, err := jobs.Open(cfg.JobsPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	store := testsupport.MustOpenMediaStore(t, cfg.MetadataPath())
	runner, err := worker.New(context.Background(), worker.Settings{
		MediaDir: cfg.Paths.MediaDir,
		TempDir:  cfg.Paths.TempDir,
	}, worker.Deps{Registry: reg, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	d, err := daemon.New(cfg, daemon.Components{
		Registry:  reg,
		Store:     store,
		Runner:    runner,
		Metrics:   metrics.New(),
		Providers: []string{"replicate"},
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status(ctx).Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestStartReconcilesInterruptedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx := context.Background()
	previous, err := jobs.Open(cfg.JobsPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	if _, err := previous.LoadAndReconcile(ctx); err != nil {
		t.Fatalf("LoadAndReconcile: %v", err)
	}
	id, err := previous.Create(ctx, jobs.KindMediaGeneration, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := api.NewClient(d.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	job, err := client.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != string(jobs.StatusFailed) || job.Error != jobs.InterruptedReason {
		t.Fatalf("expected interrupted job, got %+v", job)
	}
}

func TestStartSweepsStaleScratchDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	stale := filepath.Join(cfg.Paths.TempDir, "job-deadbeef-1")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale scratch dir to be removed, stat err = %v", err)
	}
}

func TestStatusOverAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("tok"))
	d := newDaemon(t, cfg)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, _ := api.NewClient(d.Addr(), "tok")
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LockFilePath != cfg.LockPath() || status.JobsPath != cfg.JobsPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.MetadataPath != cfg.MetadataPath() {
		t.Fatalf("expected metadata path %q, got %q", cfg.MetadataPath(), status.MetadataPath)
	}
	if len(status.Dependencies) != 2 || len(status.Providers) != 1 {
		t.Fatalf("unexpected dependency/provider lists: %+v %+v", status.Dependencies, status.Providers)
	}
	found := false
	for _, check := range status.Checks {
		if check.Name == "Replicate" {
			found = true
			if check.Passed {
				t.Fatal("replicate credentials should be reported missing")
			}
		}
	}
	if !found {
		t.Fatalf("expected a Replicate credential check: %+v", status.Checks)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(testsupport.NewConfig(t), daemon.Components{}, nil); err == nil {
		t.Fatal("expected error without registry and runner")
	}
}
