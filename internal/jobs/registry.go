package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// Registry is the process-wide job table.
type Registry struct {
	mu     sync.Mutex
	path   string
	jobs   map[string]*Job
	logger *slog.Logger
	now    func() time.Time
}

// Open prepares a registry backed by path. Nothing is read until
// LoadAndReconcile runs.
func Open(path string, logger *slog.Logger) (*Registry, error) {
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "open", "registry path is empty", nil)
	}
	return &Registry{
		path:   path,
		jobs:   map[string]*Job{},
		logger: logging.NewComponentLogger(logger, "jobs"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Path returns the backing document path.
func (r *Registry) Path() string { return r.path }

// LoadAndReconcile loads the document and fails every job left running. It
// returns how many jobs were reconciled.
func (r *Registry) LoadAndReconcile(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := r.load()
	if err != nil {
		return 0, err
	}
	r.jobs = loaded

	now := r.now()
	reconciled := 0
	for _, job := range r.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		job.Status = StatusFailed
		job.Error = InterruptedReason
		job.Message = InterruptedReason
		job.Result = nil
		job.UpdatedAt = now
		reconciled++
	}
	if reconciled > 0 {
		if err := r.persist(); err != nil {
			return reconciled, err
		}
		logging.WithContext(ctx, r.logger).Info("reconciled interrupted jobs",
			logging.Int("count", reconciled),
			logging.String(logging.FieldEventType, "jobs_reconciled"),
		)
	}
	return reconciled, nil
}

// Create records a new running job and persists it before returning.
func (r *Registry) Create(ctx context.Context, kind Kind, fields map[string]any) (string, error) {
	now := r.now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(fields) > 0 {
		job.Context = make(map[string]any, len(fields))
		for k, v := range fields {
			job.Context[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	if err := r.persist(); err != nil {
		delete(r.jobs, job.ID)
		return "", err
	}
	logging.WithContext(services.WithJobID(ctx, job.ID), r.logger).Debug("job created",
		logging.String(logging.FieldJobKind, string(kind)),
		logging.String(logging.FieldEventType, "job_created"),
	)
	return job.ID, nil
}

// Update merges patch into the job. An unknown id is a silent no-op. Patches
// against a terminal job are dropped. A persistence error is returned but the
// merged job is kept in memory.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	if job.Status.IsTerminal() {
		logging.WarnWithContext(logging.WithContext(services.WithJobID(ctx, id), r.logger),
			"dropped update for finished job", "job_update_dropped",
			logging.String("status", string(job.Status)),
			logging.String(logging.FieldErrorHint, "workers must not report after a terminal state"),
			logging.String(logging.FieldImpact, "update ignored"),
		)
		return nil
	}

	next := job.clone()
	apply(&next, patch)
	normalize(&next)
	next.UpdatedAt = r.now()

	// The in-memory table stays authoritative when the write-through fails;
	// the next successful persist carries this change to disk.
	*job = next
	if err := r.persist(); err != nil {
		logging.ErrorWithContext(logging.WithContext(services.WithJobID(ctx, id), r.logger),
			"job update not persisted", "job_persist_failed",
			logging.String("status", string(next.Status)),
			logging.String("path", r.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the state directory is writable"),
		)
		return err
	}
	return nil
}

func apply(job *Job, patch Patch) {
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		job.Progress = clamp(*patch.Progress)
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.Result != nil {
		job.Result = append(json.RawMessage(nil), patch.Result...)
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
}

// normalize enforces terminal exclusivity on a merged job.
func normalize(job *Job) {
	switch job.Status {
	case StatusCompleted:
		if !job.hasResult() {
			job.Status = StatusFailed
			job.Error = missingResultReason
			job.Message = missingResultReason
			job.Result = nil
			return
		}
		job.Error = ""
		job.Progress = 100
	case StatusFailed:
		if job.Error == "" {
			job.Error = missingErrorReason
		}
		job.Result = nil
	}
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Get returns a copy of the job.
func (r *Registry) Get(_ context.Context, id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %s", id), nil)
	}
	return job.clone(), nil
}

// List returns a snapshot of every job, newest first.
func (r *Registry) List(_ context.Context) []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats counts jobs per status.
func (r *Registry) Stats(_ context.Context) map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[Status]int{StatusRunning: 0, StatusCompleted: 0, StatusFailed: 0}
	for _, job := range r.jobs {
		stats[job.Status]++
	}
	return stats
}
