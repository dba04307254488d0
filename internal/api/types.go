package api

import (
	"encoding/json"
	"time"

	"reelsmith/internal/deps"
	"reelsmith/internal/jobs"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/preflight"
)

// Job is the transport view of a tracked job. Result is present only for
// completed jobs and Error only for failed ones.
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Context   map[string]any  `json:"context,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// JobListResponse wraps GET /api/jobs.
type JobListResponse struct {
	Jobs  []Job          `json:"jobs"`
	Stats map[string]int `json:"stats"`
}

// SubmitResponse is returned by POST /api/jobs.
type SubmitResponse struct {
	ID string `json:"id"`
}

// ProbeResponse wraps GET /api/media/probe.
type ProbeResponse struct {
	Path string       `json:"path"`
	Info ffprobe.Info `json:"info"`
}

// Frame positions accepted by POST /api/frames.
const (
	PositionFirst = "first"
	PositionLast  = "last"
	PositionAt    = "at"
)

// FrameRequest asks for one still from a clip. Output defaults to the
// images directory under the media root.
type FrameRequest struct {
	Video     string  `json:"video"`
	Position  string  `json:"position"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Output    string  `json:"output,omitempty"`
}

// FrameResponse reports the extracted still.
type FrameResponse struct {
	Boundary frames.Boundary `json:"boundary"`
}

// MediaListResponse wraps GET /api/media.
type MediaListResponse struct {
	Records []mediastore.Record `json:"records"`
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	ActiveJobs   int                `json:"active_jobs"`
	JobStats     map[string]int     `json:"job_stats"`
	JobsPath     string             `json:"jobs_path"`
	MetadataPath string             `json:"metadata_path"`
	LockFilePath string             `json:"lock_file_path"`
	LogPath      string             `json:"log_path,omitempty"`
	Providers    []string           `json:"providers"`
	Dependencies []deps.Status      `json:"dependencies"`
	Checks       []preflight.Result `json:"checks"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FromJob converts a registry job for transport.
func FromJob(job jobs.Job) Job {
	out := Job{
		ID:        job.ID,
		Kind:      string(job.Kind),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Message:   job.Message,
		Context:   job.Context,
		CreatedAt: formatTime(job.CreatedAt),
		UpdatedAt: formatTime(job.UpdatedAt),
	}
	switch job.Status {
	case jobs.StatusCompleted:
		out.Result = job.Result
	case jobs.StatusFailed:
		out.Error = job.Error
	}
	return out
}

// FromStats converts registry counters, reporting every status even when
// zero.
func FromStats(stats map[jobs.Status]int) map[string]int {
	out := map[string]int{
		string(jobs.StatusRunning):   0,
		string(jobs.StatusCompleted): 0,
		string(jobs.StatusFailed):    0,
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
