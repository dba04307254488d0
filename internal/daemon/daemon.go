package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelsmith/internal/api"
	"reelsmith/internal/config"
	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/metrics"
	"reelsmith/internal/preflight"
	"reelsmith/internal/staging"
	"reelsmith/internal/worker"
)

// Components are the collaborators the daemon owns for its lifetime.
type Components struct {
	Registry  *jobs.Registry
	Store     *mediastore.Store
	Runner    *worker.Runner
	Prober    api.Prober
	Frames    api.FrameExtractor
	Metrics   *metrics.Collector
	Providers []string
	LogPath   string
}

// Daemon enforces single-instance execution and serves the status API.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comp   Components

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon. The registry and runner are required.
func New(cfg *config.Config, comp Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comp.Registry == nil || comp.Runner == nil {
		return nil, errors.New("daemon requires config, job registry, and worker runner")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		comp:     comp,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, reconciles interrupted jobs and starts the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	if _, err := d.comp.Registry.LoadAndReconcile(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load job registry: %w", err)
	}
	if swept := staging.CleanStale(ctx, d.cfg.Paths.TempDir, staging.DefaultMaxAge, d.logger); len(swept.Removed) > 0 {
		d.logger.Info("swept scratch directories left by a previous run",
			logging.Int("removed", len(swept.Removed)),
			logging.String(logging.FieldEventType, "staging_swept"),
		)
	}

	apiCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(apiCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	for _, failed := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
		)
	}

	d.running.Store(true)
	d.logger.Info("reelsmith daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts the API down, drains workers and releases the lock. Workers
// still running are cancelled and their jobs fail; a later start would mark
// them interrupted anyway.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.comp.Runner.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelsmith daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the metadata store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.comp.Store != nil {
		return d.comp.Store.Close()
	}
	return nil
}

// Addr returns the API listener address, empty before Start.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	checks := preflight.RunAll(ctx, d.cfg)
	checks = append(checks, preflight.CheckProviderCredentials(d.cfg)...)
	status := api.StatusResponse{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		ActiveJobs:   d.comp.Runner.Active(),
		JobStats:     api.FromStats(d.comp.Registry.Stats(ctx)),
		JobsPath:     d.comp.Registry.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.comp.LogPath,
		Providers:    d.comp.Providers,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Checks:       checks,
	}
	if d.comp.Store != nil {
		status.MetadataPath = d.comp.Store.Path()
	}
	return status
}
