package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/media/stitch"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/metrics"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

// Progress phases reported to the registry.
const (
	progressSubmitted     = 5
	progressUploading     = 10
	progressProviderStart = 15
	progressProviderEnd   = 75
	progressDownloading   = 80
	progressPostProcess   = 90
)

// FrameExtractor pulls boundary stills from clips.
type FrameExtractor interface {
	ExtractLast(ctx context.Context, video, out string) (frames.Boundary, error)
	ExtractBoundaries(ctx context.Context, video, firstOut, lastOut string) (frames.Boundary, frames.Boundary, error)
}

// Stitcher joins clips.
type Stitcher interface {
	Stitch(ctx context.Context, a, b, out string) (stitch.Result, error)
	Concat(ctx context.Context, clips []string, out string, opts stitch.Options) (stitch.Result, error)
}

// MediaStore records produced media.
type MediaStore interface {
	Insert(ctx context.Context, rec mediastore.Record) (mediastore.Record, error)
}

// Settings holds the filesystem layout and polling cadence.
type Settings struct {
	MediaDir     string
	TempDir      string
	PollInterval time.Duration
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Registry   *jobs.Registry
	Providers  *providers.Set
	Frames     FrameExtractor
	Stitcher   Stitcher
	Store      MediaStore
	Metrics    *metrics.Collector
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Runner accepts jobs and runs each on its own goroutine.
type Runner struct {
	settings Settings
	deps     Deps
	logger   *slog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	// beforeRun, when set, is called on the worker goroutine before any
	// progress is reported.
	beforeRun func(id string)
}

// New builds a Runner whose workers derive their contexts from ctx.
func New(ctx context.Context, settings Settings, deps Deps) (*Runner, error) {
	if deps.Registry == nil {
		return nil, errors.New("worker requires a job registry")
	}
	if deps.Providers == nil {
		deps.Providers = providers.NewSet()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = providers.DefaultPollInterval
	}
	if settings.TempDir == "" {
		settings.TempDir = filepath.Join(os.TempDir(), "reelsmith")
	}
	base, cancel := context.WithCancel(ctx)
	return &Runner{
		settings:   settings,
		deps:       deps,
		logger:     logging.NewComponentLogger(deps.Logger, "worker"),
		base:       base,
		cancelBase: cancel,
		cancels:    map[string]context.CancelFunc{},
	}, nil
}

// Submit validates req, records a running job and starts its worker. The id
// is returned before any provider traffic happens.
func (r *Runner) Submit(ctx context.Context, req Request) (string, error) {
	req, err := req.normalized()
	if err != nil {
		return "", err
	}
	if r.isClosed() {
		return "", errShuttingDown()
	}
	id, err := r.deps.Registry.Create(ctx, req.Kind, req.contextFields())
	if err != nil {
		return "", err
	}
	r.deps.Metrics.JobSubmitted(string(req.Kind))

	jobCtx, cancel := context.WithCancel(r.base)
	jobCtx = services.WithJobID(jobCtx, id)
	jobCtx = services.WithJobKind(jobCtx, string(req.Kind))
	if req.Provider != "" {
		jobCtx = services.WithProvider(jobCtx, req.Provider)
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		jobCtx = services.WithRequestID(jobCtx, requestID)
	}

	// Add must not race Close's Wait, so the closed check and Add share
	// the lock that Close takes before cancelling.
	r.mu.Lock()
	if r.closed || r.base.Err() != nil {
		r.mu.Unlock()
		cancel()
		shutdownErr := errShuttingDown()
		if updateErr := r.deps.Registry.Update(context.WithoutCancel(ctx), id, jobs.Failed(services.FailureMessage(shutdownErr))); updateErr != nil {
			logger := logging.WithContext(services.WithJobID(ctx, id), r.logger)
			logging.ErrorWithContext(logger, "failed to persist job failure", "job_persist_failed", logging.Error(updateErr))
		}
		return "", shutdownErr
	}
	r.cancels[id] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(jobCtx, id, req)
	return id, nil
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed || r.base.Err() != nil
}

func errShuttingDown() error {
	return services.Wrap(services.ErrValidation, "worker", "submit", "runner is shutting down", nil)
}

// Cancel is not supported; jobs only stop when the runner shuts down.
func (r *Runner) Cancel(_ context.Context, id string) error {
	return services.Wrap(services.ErrValidation, "worker", "cancel", fmt.Sprintf("cancelling job %s is not supported", id), nil)
}

// Wait blocks until every started worker returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight workers and waits for them. Submit fails once
// Close has started.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancelBase()
	r.wg.Wait()
}

// Active reports how many workers are running.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

func (r *Runner) run(ctx context.Context, id string, req Request) {
	started := time.Now()
	logger := logging.WithContext(ctx, r.logger)
	var (
		result json.RawMessage
		err    error
	)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker panic: %v", rec)
			logging.ErrorWithContext(logger, "worker panicked", "worker_panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
		}
		r.finish(ctx, logger, id, req, result, err, time.Since(started))
	}()

	if r.beforeRun != nil {
		r.beforeRun(id)
	}
	r.progress(ctx, id, progressSubmitted, "submitted")
	logger.Info("job started", logging.String(logging.FieldEventType, "job_started"))
	result, err = r.execute(ctx, id, req)
}

func (r *Runner) execute(ctx context.Context, id string, req Request) (json.RawMessage, error) {
	workDir, err := r.workDir(id)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	var out any
	switch req.Kind {
	case jobs.KindMediaGeneration:
		out, err = r.generateMedia(ctx, id, req, workDir)
	case jobs.KindLipSyncImage, jobs.KindLipSyncVideo, jobs.KindMultiLipSync:
		out, err = r.lipSync(ctx, id, req, workDir)
	case jobs.KindVoice:
		out, err = r.voice(ctx, id, req, workDir)
	case jobs.KindContinuity:
		out, err = r.continuityStitch(ctx, id, req)
	case jobs.KindSceneRender:
		out, err = r.sceneRender(ctx, id, req)
	default:
		err = invalid("unknown job kind %q", req.Kind)
	}
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return payload, nil
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, id string, req Request, result json.RawMessage, err error, elapsed time.Duration) {
	// The job context may be cancelled by shutdown; the terminal write must
	// still happen.
	writeCtx := context.WithoutCancel(ctx)

	status := jobs.StatusCompleted
	errorKind := ""
	if err != nil {
		status = jobs.StatusFailed
		errorKind = services.KindOf(err)
		message := services.FailureMessage(err)
		if updateErr := r.deps.Registry.Update(writeCtx, id, jobs.Failed(message)); updateErr != nil {
			logging.ErrorWithContext(logger, "failed to persist job failure", "job_persist_failed", logging.Error(updateErr))
		}
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldErrorKind, errorKind),
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
		)
	} else {
		if updateErr := r.deps.Registry.Update(writeCtx, id, jobs.Completed(result, "done")); updateErr != nil {
			logging.ErrorWithContext(logger, "failed to persist job completion", "job_persist_failed", logging.Error(updateErr))
		}
		logger.Info("job completed",
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "job_completed"),
		)
	}
	r.deps.Metrics.JobFinished(string(req.Kind), string(status), errorKind, elapsed.Seconds())

	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	r.wg.Done()
}

func (r *Runner) progress(ctx context.Context, id string, pct int, message string) {
	if err := r.deps.Registry.Update(ctx, id, jobs.Progressed(pct, message)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to persist progress", "job_progress_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job status may lag until the next update"),
		)
	}
}

// providerProgress maps a provider percentage onto 15..75.
func providerProgress(p int) int {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return progressProviderStart + p*(progressProviderEnd-progressProviderStart)/100
}

func (r *Runner) workDir(id string) (string, error) {
	if err := os.MkdirAll(r.settings.TempDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "worker", "temp dir", r.settings.TempDir, err)
	}
	dir, err := os.MkdirTemp(r.settings.TempDir, "job-"+shortID(id)+"-")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "worker", "temp dir", r.settings.TempDir, err)
	}
	return dir, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
