package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

type document struct {
	Jobs map[string]*Job `json:"jobs"`
}

// load reads the backing document. A missing file is an empty table. A
// corrupt file is moved aside so the daemon can still start.
func (r *Registry) load() (map[string]*Job, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*Job{}, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "load", r.path, err)
	}
	if len(data) == 0 {
		return map[string]*Job{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%s", r.path, r.now().Format("20060102T150405"))
		if renameErr := os.Rename(r.path, aside); renameErr != nil {
			return nil, services.Wrap(services.ErrConfiguration, "jobs", "quarantine", r.path, errors.Join(err, renameErr))
		}
		logging.ErrorWithContext(r.logger, "job registry corrupt; starting empty", "jobs_corrupt",
			logging.String("path", r.path),
			logging.String("moved_to", aside),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the quarantined file to recover job history"),
		)
		return map[string]*Job{}, nil
	}

	jobs := make(map[string]*Job, len(doc.Jobs))
	for id, job := range doc.Jobs {
		if job == nil {
			continue
		}
		if job.ID == "" {
			job.ID = id
		}
		jobs[job.ID] = job
	}
	return jobs, nil
}

// persist writes the whole table. Callers hold r.mu.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(document{Jobs: r.jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jobs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.path, data, 0o644); err != nil {
		return fmt.Errorf("persist jobs: %w", err)
	}
	return nil
}
