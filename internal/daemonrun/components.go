package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/jobs"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/media/stitch"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/metrics"
	"reelsmith/internal/objectstore"
	"reelsmith/internal/providers/catalog"
	"reelsmith/internal/worker"
)

// MediaTools are the ffmpeg-backed helpers shared by the daemon and the
// local CLI commands.
type MediaTools struct {
	Prober    *ffprobe.Prober
	Extractor *frames.Extractor
	Stitcher  *stitch.Stitcher
}

// NewMediaTools builds the prober, frame extractor and stitcher from config.
func NewMediaTools(cfg *config.Config, logger *slog.Logger) MediaTools {
	prober := ffprobe.NewProber(cfg.Media.FFprobeBinary, cfg.ProbeTimeout())
	return MediaTools{
		Prober:    prober,
		Extractor: frames.NewExtractor(cfg.Media.FFmpegBinary, prober, cfg.ExtractTimeout(), logger),
		Stitcher: stitch.New(stitch.Settings{
			Binary:       cfg.Media.FFmpegBinary,
			TempDir:      cfg.Paths.TempDir,
			Timeout:      cfg.StitchTimeout(),
			CRF:          cfg.Media.CRF,
			Preset:       cfg.Media.Preset,
			AudioBitrate: cfg.Media.AudioBitrate,
		}, prober, logger),
	}
}

// BuildComponents opens the registry and metadata store and wires the
// worker runner. The caller owns the returned store.
func BuildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (daemon.Components, error) {
	registry, err := jobs.Open(cfg.JobsPath(), logger)
	if err != nil {
		return daemon.Components{}, err
	}
	store, err := mediastore.Open(cfg.MetadataPath())
	if err != nil {
		return daemon.Components{}, fmt.Errorf("open media store: %w", err)
	}

	var catalogOpts catalog.Options
	bucket, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		_ = store.Close()
		return daemon.Components{}, err
	}
	if bucket != nil {
		catalogOpts.Uploader = bucket
	}
	set := catalog.FromConfig(cfg, catalogOpts)

	tools := NewMediaTools(cfg, logger)
	collector := metrics.New()
	runner, err := worker.New(ctx, worker.Settings{
		MediaDir:     cfg.Paths.MediaDir,
		TempDir:      cfg.Paths.TempDir,
		PollInterval: cfg.PollInterval(),
	}, worker.Deps{
		Registry:  registry,
		Providers: set,
		Frames:    tools.Extractor,
		Stitcher:  tools.Stitcher,
		Store:     store,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return daemon.Components{}, err
	}

	return daemon.Components{
		Registry:  registry,
		Store:     store,
		Runner:    runner,
		Prober:    tools.Prober,
		Frames:    tools.Extractor,
		Metrics:   collector,
		Providers: set.Names(),
	}, nil
}
