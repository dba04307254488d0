package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/jobs"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/worker"
)

type cliTestEnv struct {
	cfg        *config.Config
	registry   *jobs.Registry
	submitted  []worker.Request
	configPath string
}

func (e *cliTestEnv) Submit(_ context.Context, req worker.Request) (string, error) {
	e.submitted = append(e.submitted, req)
	return "job-from-cli", nil
}

// setupCLITestEnv writes a config whose api.bind points at an httptest
// server backed by a real registry. Pass withAPI=false for a config whose
// bind has nothing listening.
func setupCLITestEnv(t *testing.T, withAPI bool) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"REPLICATE_API_TOKEN", "WAVESPEED_API_KEY", "ELEVENLABS_API_KEY", "VERTEX_ACCESS_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-token"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	env := &cliTestEnv{cfg: cfg, registry: testsupport.NewRegistry(t)}

	if withAPI {
		srv := httptest.NewServer(api.NewRouter(api.Options{
			Jobs:      env.registry,
			Submitter: env,
			Token:     cfg.API.Token,
		}))
		t.Cleanup(srv.Close)
		cfg.API.Bind = strings.TrimPrefix(srv.URL, "http://")
	} else {
		cfg.API.Bind = "127.0.0.1:1"
	}

	env.configPath = filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, env.configPath, cfg)
	return env
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
media_dir = %q
temp_dir = %q
log_dir = %q

[api]
bind = %q
token = %q

[media]
min_free_gib = 0
`, cfg.Paths.StateDir, cfg.Paths.MediaDir, cfg.Paths.TempDir, cfg.Paths.LogDir, cfg.API.Bind, cfg.API.Token)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
