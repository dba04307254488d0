package worker

import (
	"fmt"
	"slices"
	"strings"

	"reelsmith/internal/jobs"
	"reelsmith/internal/services"
)

// Request describes a job. Which fields are required depends on Kind.
type Request struct {
	Kind       jobs.Kind `json:"kind"`
	Provider   string    `json:"provider,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	OutputName string    `json:"output_name,omitempty"`

	// media-generation
	MediaType       string   `json:"media_type,omitempty"`
	Model           string   `json:"model,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	StartFrame      string   `json:"start_frame,omitempty"`
	EndFrame        string   `json:"end_frame,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	ContinueFrom    string   `json:"continue_from,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	GenerateAudio   bool     `json:"generate_audio,omitempty"`
	Seed            *int     `json:"seed,omitempty"`
	NumOutputs      int      `json:"num_outputs,omitempty"`

	// lip-sync and voice
	Image   string   `json:"image,omitempty"`
	Video   string   `json:"video,omitempty"`
	Audio   []string `json:"audio,omitempty"`
	Text    string   `json:"text,omitempty"`
	VoiceID string   `json:"voice_id,omitempty"`

	// continuity-stitch and scene-render
	ClipA      string   `json:"clip_a,omitempty"`
	ClipB      string   `json:"clip_b,omitempty"`
	Clips      []string `json:"clips,omitempty"`
	Continuity *bool    `json:"continuity,omitempty"`
}

const (
	mediaTypeVideo = "video"
	mediaTypeImage = "image"
)

var defaultProviders = map[jobs.Kind]string{
	jobs.KindMediaGeneration: "replicate",
	jobs.KindLipSyncImage:    "wavespeed",
	jobs.KindLipSyncVideo:    "wavespeed",
	jobs.KindMultiLipSync:    "wavespeed",
	jobs.KindVoice:           "elevenlabs",
}

var allowedProviders = map[jobs.Kind][]string{
	jobs.KindMediaGeneration: {"replicate", "vertex"},
	jobs.KindLipSyncImage:    {"wavespeed"},
	jobs.KindLipSyncVideo:    {"wavespeed"},
	jobs.KindMultiLipSync:    {"wavespeed"},
	jobs.KindVoice:           {"elevenlabs"},
}

// normalized fills defaults and checks the request shape. It never touches
// the network or the filesystem.
func (r Request) normalized() (Request, error) {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.MediaType = strings.ToLower(strings.TrimSpace(r.MediaType))
	if _, ok := jobs.ParseKind(string(r.Kind)); !ok {
		return r, invalid("unknown job kind %q", r.Kind)
	}

	if allowed, ok := allowedProviders[r.Kind]; ok {
		if r.Provider == "" {
			r.Provider = defaultProviders[r.Kind]
		}
		if !slices.Contains(allowed, r.Provider) {
			return r, invalid("provider %q cannot run %s jobs", r.Provider, r.Kind)
		}
	} else if r.Provider != "" {
		return r, invalid("%s jobs do not use a provider", r.Kind)
	}

	switch r.Kind {
	case jobs.KindMediaGeneration:
		if r.MediaType == "" {
			r.MediaType = mediaTypeVideo
		}
		if r.MediaType != mediaTypeVideo && r.MediaType != mediaTypeImage {
			return r, invalid("media_type must be video or image, got %q", r.MediaType)
		}
		if strings.TrimSpace(r.Prompt) == "" {
			return r, invalid("prompt is required")
		}
		if r.ContinueFrom != "" && r.MediaType == mediaTypeImage {
			return r, invalid("continue_from only applies to video generation")
		}
		if r.ContinueFrom != "" && r.StartFrame != "" {
			return r, invalid("continue_from replaces start_frame; set only one")
		}
	case jobs.KindLipSyncImage:
		if r.Image == "" || len(r.Audio) != 1 {
			return r, invalid("lip-sync-image needs image and exactly one audio file")
		}
	case jobs.KindLipSyncVideo:
		if r.Video == "" || len(r.Audio) != 1 {
			return r, invalid("lip-sync-video needs video and exactly one audio file")
		}
	case jobs.KindMultiLipSync:
		if r.Image == "" || len(r.Audio) != 2 {
			return r, invalid("multi-character-lip-sync needs image and two audio files")
		}
	case jobs.KindVoice:
		if strings.TrimSpace(r.Text) == "" && len(r.Audio) == 0 {
			return r, invalid("voice-generation needs text or a source audio file")
		}
	case jobs.KindContinuity:
		if r.ClipA == "" || r.ClipB == "" {
			return r, invalid("continuity-stitch needs clip_a and clip_b")
		}
	case jobs.KindSceneRender:
		if len(r.Clips) < 2 {
			return r, invalid("scene-render needs at least two clips")
		}
	}
	return r, nil
}

// contextFields are the request fields stored on the job for display.
func (r Request) contextFields() map[string]any {
	fields := map[string]any{}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("provider", r.Provider)
	set("project_id", r.ProjectID)
	set("output_name", r.OutputName)
	set("media_type", r.MediaType)
	set("model", r.Model)
	set("continue_from", r.ContinueFrom)
	if len(r.Clips) > 0 {
		fields["clips"] = len(r.Clips)
	}
	return fields
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "worker", "submit", fmt.Sprintf(format, args...), nil)
}
