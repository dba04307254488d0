package worker

import (
	"context"
	"path/filepath"

	"reelsmith/internal/media/stitch"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/services"
)

func (r *Runner) continuityStitch(ctx context.Context, id string, req Request) (any, error) {
	if r.deps.Stitcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "stitch", "stitcher not configured", nil)
	}
	r.progress(ctx, id, progressPostProcess, "stitching clips")
	out := filepath.Join(r.settings.MediaDir, "video", outputName(req, id)+".mp4")
	res, err := r.deps.Stitcher.Stitch(ctx, req.ClipA, req.ClipB, out)
	r.deps.Metrics.MediaOperation("stitch", err == nil)
	if err != nil {
		return nil, err
	}
	return r.recordStitch(ctx, id, req, StitchResult{Result: res})
}

func (r *Runner) sceneRender(ctx context.Context, id string, req Request) (any, error) {
	if r.deps.Stitcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "render", "stitcher not configured", nil)
	}
	continuity := req.Continuity == nil || *req.Continuity
	r.progress(ctx, id, progressPostProcess, "rendering scene")
	out := filepath.Join(r.settings.MediaDir, "video", outputName(req, id)+".mp4")
	res, err := r.deps.Stitcher.Concat(ctx, req.Clips, out, stitch.Options{Continuity: continuity})
	r.deps.Metrics.MediaOperation("render", err == nil)
	if err != nil {
		return nil, err
	}
	return r.recordStitch(ctx, id, req, StitchResult{Result: res, Clips: len(req.Clips)})
}

func (r *Runner) recordStitch(ctx context.Context, id string, req Request, result StitchResult) (any, error) {
	rec, err := r.record(ctx, id, req, mediastore.Record{
		Kind:     mediastore.KindVideo,
		Path:     result.Path,
		MimeType: "video/mp4",
		Duration: result.Duration,
		Width:    result.Width,
		Height:   result.Height,
	}, result.Result)
	if err != nil {
		return nil, err
	}
	result.MediaID = rec.ID
	return result, nil
}
