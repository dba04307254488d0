// Package testsupport holds builders shared by package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Provider credentials are blank so no test reaches a real API by accident.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Polling.IntervalSeconds = 1
	cfgVal.Media.MinFreeGiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithReplicate points the Replicate adapter at baseURL with token.
func WithReplicate(baseURL, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Replicate.BaseURL = baseURL
		b.cfg.Replicate.APIToken = token
	}
}

// WithAPIToken requires bearer auth on the HTTP surface.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithoutTempDir clears the temp directory so defaults apply.
func WithoutTempDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.TempDir = ""
	}
}

// BaseDir returns the per-test root the config lives under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
