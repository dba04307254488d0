package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/media/stitch"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

// MediaResult is the result document of provider-backed jobs.
type MediaResult struct {
	Provider   string           `json:"provider"`
	Path       string           `json:"path"`
	Paths      []string         `json:"paths,omitempty"`
	MediaID    string           `json:"media_id"`
	FirstFrame *frames.Boundary `json:"first_frame,omitempty"`
	LastFrame  *frames.Boundary `json:"last_frame,omitempty"`
	Stitched   *StitchResult    `json:"stitched,omitempty"`
}

// StitchResult is the result document of stitch and render jobs.
type StitchResult struct {
	stitch.Result
	MediaID string `json:"media_id"`
	Clips   int    `json:"clips,omitempty"`
}

func (r *Runner) generateMedia(ctx context.Context, id string, req Request, workDir string) (any, error) {
	logger := logging.WithContext(ctx, r.logger)
	mode := providers.ModeVideo
	if req.MediaType == mediaTypeImage {
		mode = providers.ModeImage
	}
	preq := providers.Request{
		Mode:            mode,
		Model:           req.Model,
		Prompt:          req.Prompt,
		StartFrame:      req.StartFrame,
		EndFrame:        req.EndFrame,
		ReferenceImages: req.ReferenceImages,
		Resolution:      req.Resolution,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
		GenerateAudio:   req.GenerateAudio,
		Seed:            req.Seed,
		NumOutputs:      req.NumOutputs,
		WorkDir:         workDir,
	}

	if req.ContinueFrom != "" {
		if r.deps.Frames == nil {
			return nil, services.Wrap(services.ErrConfiguration, "worker", "continue", "frame extractor not configured", nil)
		}
		r.progress(ctx, id, progressUploading, "extracting continuation frame")
		last, err := r.deps.Frames.ExtractLast(ctx, req.ContinueFrom, filepath.Join(workDir, "continue_last.png"))
		r.deps.Metrics.MediaOperation("frames", err == nil)
		if err != nil {
			return nil, err
		}
		preq.StartFrame = last.Path
	}

	outputs, err := r.callProvider(ctx, id, req.Provider, preq)
	if err != nil {
		return nil, err
	}

	name := outputName(req, id)
	if mode == providers.ModeImage {
		return r.saveImages(ctx, id, req, name, outputs)
	}

	primary, _ := providers.Primary(outputs)
	r.progress(ctx, id, progressDownloading, "downloading video")
	clip := filepath.Join(r.settings.MediaDir, "video", name+extensionFor(primary, ".mp4"))
	if _, err := providers.Download(ctx, r.deps.HTTPClient, primary, clip); err != nil {
		return nil, err
	}

	r.progress(ctx, id, progressPostProcess, "extracting boundary frames")
	result := MediaResult{Provider: req.Provider, Path: clip}
	if r.deps.Frames != nil {
		imagesDir := filepath.Join(r.settings.MediaDir, "images")
		first, last, err := r.deps.Frames.ExtractBoundaries(ctx, clip,
			filepath.Join(imagesDir, name+"_first.png"),
			filepath.Join(imagesDir, name+"_last.png"))
		r.deps.Metrics.MediaOperation("frames", err == nil)
		if err != nil {
			logging.WarnWithContext(logger, "boundary extraction incomplete", "boundary_frames_partial",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run reelsmith frames last on the clip to retry"),
				logging.String(logging.FieldImpact, "result omits the failed boundary"),
			)
		}
		if first.OK() {
			result.FirstFrame = &first
		}
		if last.OK() {
			result.LastFrame = &last
		}
	}

	if req.ContinueFrom != "" {
		stitched, err := r.stitchContinuation(ctx, req, name, clip)
		if err != nil {
			return nil, err
		}
		result.Stitched = stitched
	}

	rec, err := r.record(ctx, id, req, mediastore.Record{
		Kind:     mediastore.KindVideo,
		Path:     clip,
		MimeType: "video/mp4",
	}, result)
	if err != nil {
		return nil, err
	}
	result.MediaID = rec.ID
	return result, nil
}

func (r *Runner) stitchContinuation(ctx context.Context, req Request, name, clip string) (*StitchResult, error) {
	if r.deps.Stitcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "continue", "stitcher not configured", nil)
	}
	out := filepath.Join(r.settings.MediaDir, "video", name+"_continuity.mp4")
	res, err := r.deps.Stitcher.Stitch(ctx, req.ContinueFrom, clip, out)
	r.deps.Metrics.MediaOperation("stitch", err == nil)
	if err != nil {
		return nil, err
	}
	return &StitchResult{Result: res}, nil
}

func (r *Runner) saveImages(ctx context.Context, id string, req Request, name string, outputs []providers.Output) (any, error) {
	r.progress(ctx, id, progressDownloading, "downloading images")
	result := MediaResult{Provider: req.Provider}
	for i, output := range outputs {
		dest := filepath.Join(r.settings.MediaDir, "images", fmt.Sprintf("%s_%d%s", name, i+1, extensionFor(output, ".png")))
		if len(outputs) == 1 {
			dest = filepath.Join(r.settings.MediaDir, "images", name+extensionFor(output, ".png"))
		}
		if _, err := providers.Download(ctx, r.deps.HTTPClient, output, dest); err != nil {
			return nil, err
		}
		result.Paths = append(result.Paths, dest)
	}
	result.Path = result.Paths[len(result.Paths)-1]

	r.progress(ctx, id, progressPostProcess, "recording media")
	for i, path := range result.Paths {
		rec, err := r.record(ctx, id, req, mediastore.Record{Kind: mediastore.KindImage, Path: path}, nil)
		if err != nil {
			return nil, err
		}
		if i == len(result.Paths)-1 {
			result.MediaID = rec.ID
		}
	}
	return result, nil
}

func (r *Runner) lipSync(ctx context.Context, id string, req Request, workDir string) (any, error) {
	preq := providers.Request{
		Mode:       providers.ModeLipSync,
		Prompt:     req.Prompt,
		Audio:      req.Audio,
		Resolution: req.Resolution,
		Seed:       req.Seed,
		WorkDir:    workDir,
	}
	switch req.Kind {
	case jobs.KindLipSyncImage:
		preq.Image = req.Image
	case jobs.KindLipSyncVideo:
		preq.Video = req.Video
	case jobs.KindMultiLipSync:
		preq.Mode = providers.ModeLipSyncMulti
		preq.Image = req.Image
	}

	outputs, err := r.callProvider(ctx, id, req.Provider, preq)
	if err != nil {
		return nil, err
	}
	primary, _ := providers.Primary(outputs)
	r.progress(ctx, id, progressDownloading, "downloading video")
	clip := filepath.Join(r.settings.MediaDir, "video", outputName(req, id)+extensionFor(primary, ".mp4"))
	if _, err := providers.Download(ctx, r.deps.HTTPClient, primary, clip); err != nil {
		return nil, err
	}

	r.progress(ctx, id, progressPostProcess, "recording media")
	result := MediaResult{Provider: req.Provider, Path: clip}
	rec, err := r.record(ctx, id, req, mediastore.Record{Kind: mediastore.KindVideo, Path: clip, MimeType: "video/mp4"}, nil)
	if err != nil {
		return nil, err
	}
	result.MediaID = rec.ID
	return result, nil
}

func (r *Runner) voice(ctx context.Context, id string, req Request, workDir string) (any, error) {
	outputs, err := r.callProvider(ctx, id, req.Provider, providers.Request{
		Mode:    providers.ModeSpeech,
		Model:   req.Model,
		Text:    req.Text,
		Audio:   req.Audio,
		VoiceID: req.VoiceID,
		WorkDir: workDir,
	})
	if err != nil {
		return nil, err
	}
	primary, _ := providers.Primary(outputs)
	r.progress(ctx, id, progressDownloading, "saving audio")
	dest := filepath.Join(r.settings.MediaDir, "audio", outputName(req, id)+extensionFor(primary, ".mp3"))
	if _, err := providers.Download(ctx, r.deps.HTTPClient, primary, dest); err != nil {
		return nil, err
	}

	r.progress(ctx, id, progressPostProcess, "recording media")
	result := MediaResult{Provider: req.Provider, Path: dest}
	rec, err := r.record(ctx, id, req, mediastore.Record{Kind: mediastore.KindAudio, Path: dest, MimeType: primary.MimeType}, nil)
	if err != nil {
		return nil, err
	}
	result.MediaID = rec.ID
	return result, nil
}

// callProvider submits, awaits and returns the outputs of one provider call.
func (r *Runner) callProvider(ctx context.Context, id, name string, preq providers.Request) ([]providers.Output, error) {
	client, err := r.deps.Providers.Get(name)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	r.progress(ctx, id, progressUploading, "uploading inputs")
	handle, err := client.Submit(ctx, preq)
	if err != nil {
		r.deps.Metrics.ProviderAwait(name, false, time.Since(started).Seconds())
		return nil, err
	}
	logging.WithContext(ctx, r.logger).Info("provider request submitted",
		logging.String("request_id", handle.ID),
		logging.String(logging.FieldEventType, "provider_submitted"),
	)
	r.progress(ctx, id, progressProviderStart, "waiting for "+name)

	last := -1
	outputs, err := providers.Await(ctx, client, handle, r.deps.Providers.Policy(name, r.settings.PollInterval), func(p int) {
		mapped := providerProgress(p)
		if mapped == last {
			return
		}
		last = mapped
		r.progress(ctx, id, mapped, fmt.Sprintf("%s %d%%", name, p))
	})
	r.deps.Metrics.ProviderAwait(name, err == nil, time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "no outputs", nil)
	}
	return outputs, nil
}

// record inserts a media record. A failed insert fails the job.
func (r *Runner) record(ctx context.Context, id string, req Request, rec mediastore.Record, meta any) (mediastore.Record, error) {
	if r.deps.Store == nil {
		return rec, nil
	}
	rec.ProjectID = req.ProjectID
	rec.JobID = id
	if meta != nil {
		if data, err := json.Marshal(meta); err == nil {
			rec.Metadata = data
		}
	}
	stored, err := r.deps.Store.Insert(ctx, rec)
	if err != nil {
		return mediastore.Record{}, services.Wrap(services.ErrMediaProcessing, "worker", "record media", rec.Path, err)
	}
	return stored, nil
}
