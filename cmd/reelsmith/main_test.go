package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/api"
	"reelsmith/internal/jobs"
	"reelsmith/internal/mediastore"
)

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t, false)
	out, _, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "cli-token") {
		t.Fatalf("token leaked into output: %s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, env.cfg.Paths.MediaDir)

	out, _, err = runCLI(t, env.configPath, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "cli-token")
}

func TestJobsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t, true)
	ctx := context.Background()
	id, err := env.registry.Create(ctx, jobs.KindMultiLipSync, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.registry.Update(ctx, id, jobs.Failed("provider-rejected: wavespeed: status failed")); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, id[:8])
	requireContains(t, out, "Multi Character Lip Sync")
	requireContains(t, out, "provider-rejected")
	requireContains(t, out, "running 0, completed 0, failed 1")

	out, _, err = runCLI(t, env.configPath, "jobs", "show", id, "--json")
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if job.ID != id || job.Status != "failed" {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, _, err := runCLI(t, env.configPath, "jobs", "show", "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestJobsSubmitFromFlags(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, _, err := runCLI(t, env.configPath, "jobs", "submit",
		"--kind", "scene-render", "--clip", "a.mp4", "--clip", "b.mp4", "--continuity=false")
	if err != nil {
		t.Fatalf("jobs submit: %v", err)
	}
	requireContains(t, out, "Submitted job job-from-cli")
	if len(env.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(env.submitted))
	}
	req := env.submitted[0]
	if req.Kind != jobs.KindSceneRender || len(req.Clips) != 2 || req.Continuity == nil || *req.Continuity {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, _, err := runCLI(t, env.configPath, "jobs", "submit", "--kind", "bogus"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestJobsSubmitFromFile(t *testing.T) {
	env := setupCLITestEnv(t, true)
	path := filepath.Join(t.TempDir(), "request.json")
	if err := os.WriteFile(path, []byte(`{"kind":"voice-generation","text":"hello there"}`), 0o644); err != nil {
		t.Fatalf("write request: %v", err)
	}
	if _, _, err := runCLI(t, env.configPath, "jobs", "submit", "--file", path); err != nil {
		t.Fatalf("jobs submit --file: %v", err)
	}
	if len(env.submitted) != 1 || env.submitted[0].Text != "hello there" {
		t.Fatalf("unexpected submissions: %+v", env.submitted)
	}
}

func TestJobsListWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)
	_, _, err := runCLI(t, env.configPath, "jobs", "list")
	if err == nil {
		t.Fatal("expected error without a daemon")
	}
	requireContains(t, err.Error(), "reelsmith serve")
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)
	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "Replicate")
	requireContains(t, out, env.cfg.JobsPath())
}

func TestMediaList(t *testing.T) {
	env := setupCLITestEnv(t, false)
	out, _, err := runCLI(t, env.configPath, "media", "list")
	if err != nil {
		t.Fatalf("media list: %v", err)
	}
	requireContains(t, out, "No media recorded")

	store, err := mediastore.Open(env.cfg.MetadataPath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.Insert(context.Background(), mediastore.Record{
		ProjectID: "pilot",
		Kind:      mediastore.KindVideo,
		Path:      filepath.Join(env.cfg.Paths.MediaDir, "video", "shot01.mp4"),
		Duration:  8,
		Width:     1280,
		Height:    720,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	store.Close()

	out, _, err = runCLI(t, env.configPath, "media", "list", "--project", "pilot")
	if err != nil {
		t.Fatalf("media list: %v", err)
	}
	requireContains(t, out, filepath.Join("video", "shot01.mp4"))
	requireContains(t, out, "1280x720")
	requireContains(t, out, "8.00s")
}

func TestLogsCommandFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t, false)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "reelsmith.log")
	content := "INFO job created job_id=aaa\nINFO job created job_id=bbb\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "logs", "--job", "bbb")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "aaa") || !strings.Contains(out, "job_id=bbb") {
		t.Fatalf("unexpected logs output: %q", out)
	}
}

func TestKindLabel(t *testing.T) {
	tests := map[string]string{
		"media-generation":         "Media Generation",
		"multi-character-lip-sync": "Multi Character Lip Sync",
		"video":                    "Video",
	}
	for in, want := range tests {
		if got := kindLabel(in); got != want {
			t.Fatalf("kindLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}
}
