package jobs

import (
	"encoding/json"
	"time"
)

// Kind identifies the pipeline a job runs.
type Kind string

const (
	KindMediaGeneration Kind = "media-generation"
	KindLipSyncImage    Kind = "lip-sync-image"
	KindLipSyncVideo    Kind = "lip-sync-video"
	KindMultiLipSync    Kind = "multi-character-lip-sync"
	KindVoice           Kind = "voice-generation"
	KindContinuity      Kind = "continuity-stitch"
	KindSceneRender     Kind = "scene-render"
)

var allKinds = []Kind{
	KindMediaGeneration,
	KindLipSyncImage,
	KindLipSyncVideo,
	KindMultiLipSync,
	KindVoice,
	KindContinuity,
	KindSceneRender,
}

// Kinds returns every supported job kind.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind normalizes a kind label.
func ParseKind(value string) (Kind, bool) {
	for _, k := range allKinds {
		if string(k) == value {
			return k, true
		}
	}
	return "", false
}

// Status represents the lifecycle of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	// InterruptedReason is the error stamped on jobs that were running when
	// the previous process exited.
	InterruptedReason = "interrupted by restart"

	missingErrorReason  = "job failed without error detail"
	missingResultReason = "completed without a result"
)

// Job is one tracked unit of asynchronous work.
type Job struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Context   map[string]any  `json:"context,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (j Job) clone() Job {
	out := j
	if j.Result != nil {
		out.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.Context != nil {
		out.Context = make(map[string]any, len(j.Context))
		for k, v := range j.Context {
			out.Context[k] = v
		}
	}
	return out
}

// hasResult treats a JSON null as no result.
func (j Job) hasResult() bool {
	return len(j.Result) > 0 && string(j.Result) != "null"
}

// Patch lists the fields to merge into a job. Nil fields are left alone.
type Patch struct {
	Status   *Status
	Progress *int
	Message  *string
	Result   json.RawMessage
	Error    *string
}

// Progressed returns a patch that only moves progress and message.
func Progressed(progress int, message string) Patch {
	return Patch{Progress: &progress, Message: &message}
}

// Completed returns a terminal success patch carrying result.
func Completed(result json.RawMessage, message string) Patch {
	status := StatusCompleted
	progress := 100
	return Patch{Status: &status, Progress: &progress, Message: &message, Result: result}
}

// Failed returns a terminal failure patch.
func Failed(reason string) Patch {
	status := StatusFailed
	return Patch{Status: &status, Message: &reason, Error: &reason}
}
