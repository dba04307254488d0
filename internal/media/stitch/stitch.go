package stitch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
)

var commandContext = exec.CommandContext

const (
	defaultWidth    = 1280
	defaultHeight   = 720
	defaultFPS      = 24.0
	defaultTimeout  = 15 * time.Minute
	stderrTailBytes = 4096
)

// Prober summarizes a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Info, error)
}

// Settings configures the ffmpeg invocation and encode profile.
type Settings struct {
	Binary       string
	TempDir      string
	Timeout      time.Duration
	CRF          int
	Preset       string
	AudioBitrate string
}

// Options controls multi-clip concatenation.
type Options struct {
	// Continuity drops the duplicate first frame of every clip after the
	// first. Plain concatenation keeps it.
	Continuity bool
}

// Result describes a finished join.
type Result struct {
	Path           string      `json:"path"`
	Duration       float64     `json:"duration"`
	Strategy       Strategy    `json:"strategy"`
	AudioSource    AudioSource `json:"audio_source"`
	FPS            float64     `json:"fps"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	TrimmedSeconds float64     `json:"trimmed_seconds"`
}

// Stitcher joins clips with ffmpeg.
type Stitcher struct {
	settings Settings
	prober   Prober
	logger   *slog.Logger
}

// New constructs a Stitcher, filling unset settings with the default encode
// profile (libx264 medium, CRF 18, AAC 192k).
func New(settings Settings, prober Prober, logger *slog.Logger) *Stitcher {
	if strings.TrimSpace(settings.Binary) == "" {
		settings.Binary = "ffmpeg"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}
	if settings.CRF <= 0 {
		settings.CRF = 18
	}
	if strings.TrimSpace(settings.Preset) == "" {
		settings.Preset = "medium"
	}
	if strings.TrimSpace(settings.AudioBitrate) == "" {
		settings.AudioBitrate = "192k"
	}
	if prober == nil {
		prober = ffprobe.NewProber("", 0)
	}
	return &Stitcher{
		settings: settings,
		prober:   prober,
		logger:   logging.NewComponentLogger(logger, "stitch"),
	}
}

// Stitch joins clip a then clip b into out, removing the duplicated seam
// frame at the start of b.
func (s *Stitcher) Stitch(ctx context.Context, a, b, out string) (Result, error) {
	if err := requireInputs(a, b); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(out) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "stitch", "stitch", "output path is required", nil)
	}
	return s.join(ctx, a, b, out, true)
}

// Concat folds the clips pairwise in order. With Continuity set each join
// drops the seam frame like Stitch; otherwise clips are joined as-is.
func (s *Stitcher) Concat(ctx context.Context, clips []string, out string, opts Options) (Result, error) {
	if len(clips) < 2 {
		return Result{}, services.Wrap(services.ErrValidation, "stitch", "concat", "at least two clips are required", nil)
	}
	if err := requireInputs(clips...); err != nil {
		return Result{}, err
	}
	if len(clips) == 2 {
		return s.join(ctx, clips[0], clips[1], out, opts.Continuity)
	}

	work, err := os.MkdirTemp(s.settings.TempDir, "concat-")
	if err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "concat", "create temp dir", err)
	}
	defer os.RemoveAll(work)

	acc := clips[0]
	var result Result
	var trimmed float64
	for i := 1; i < len(clips); i++ {
		target := filepath.Join(work, "part-"+strconv.Itoa(i)+".mp4")
		if i == len(clips)-1 {
			target = out
		}
		result, err = s.join(ctx, acc, clips[i], target, opts.Continuity)
		if err != nil {
			return Result{}, fmt.Errorf("join clip %d of %d: %w", i+1, len(clips), err)
		}
		trimmed += result.TrimmedSeconds
		acc = target
	}
	result.TrimmedSeconds = trimmed
	return result, nil
}

func (s *Stitcher) join(ctx context.Context, a, b, out string, dropFirst bool) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)

	var infoA, infoB ffprobe.Info
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		infoA, err = s.prober.Probe(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		infoB, err = s.prober.Probe(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "probe inputs", "", err)
	}
	if !infoA.HasVideo || !infoB.HasVideo {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "probe inputs", "both clips need a video stream", nil)
	}

	plan := Plan{
		Target:    chooseTarget(infoA, infoB),
		A:         Clip{HasAudio: infoA.HasAudio, Duration: infoA.Duration},
		B:         Clip{HasAudio: infoB.HasAudio, Duration: infoB.Duration},
		DropFirst: dropFirst,
	}
	if plan.A.HasAudio != plan.B.HasAudio {
		silent := plan.A
		if plan.A.HasAudio {
			silent = plan.B
		}
		if silent.Duration <= 0 {
			logging.WarnWithContext(logger, "silent clip has no usable duration; joining video only",
				"stitch_audio_dropped",
				logging.String(logging.FieldErrorHint, "re-encode the silent clip so ffprobe reports its duration"),
				logging.String(logging.FieldImpact, "stitched clip has no audio"),
			)
			plan.A.HasAudio, plan.B.HasAudio = false, false
		}
	}
	graph := BuildFilterGraph(plan)

	work, err := os.MkdirTemp(s.settings.TempDir, "stitch-")
	if err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "join", "create temp dir", err)
	}
	defer os.RemoveAll(work)
	staged := filepath.Join(work, "stitched.mp4")

	logger.Debug("stitch starting",
		logging.String("clip_a", a),
		logging.String("clip_b", b),
		logging.String("strategy", string(graph.Strategy)),
		logging.String("filter", graph.Filter),
	)
	start := time.Now()
	if err := s.run(ctx, s.encodeArgs(a, b, graph, staged)); err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "encode", filepath.Base(out), err)
	}

	info, err := s.prober.Probe(ctx, staged)
	if err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "verify output", "", err)
	}
	if info.Duration <= 0 {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "verify output", "stitched clip has no duration", nil)
	}
	if err := fileutil.MoveFile(staged, out); err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "stitch", "finalize", out, err)
	}

	result := Result{
		Path:           out,
		Duration:       info.Duration,
		Strategy:       graph.Strategy,
		AudioSource:    graph.AudioSource,
		FPS:            plan.Target.FPS,
		Width:          plan.Target.Width,
		Height:         plan.Target.Height,
		TrimmedSeconds: graph.Trimmed,
	}
	logger.Info("stitch complete",
		logging.String("output", out),
		logging.String("strategy", string(result.Strategy)),
		logging.String("audio_source", string(result.AudioSource)),
		logging.Float64("duration_seconds", result.Duration),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (s *Stitcher) encodeArgs(a, b string, graph Graph, out string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", a,
		"-i", b,
		"-filter_complex", graph.Filter,
		"-map", graph.VideoPad,
	}
	if graph.AudioPad != "" {
		args = append(args, "-map", graph.AudioPad)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", s.settings.Preset,
		"-crf", strconv.Itoa(s.settings.CRF),
		"-pix_fmt", "yuv420p",
	)
	if graph.AudioPad != "" {
		args = append(args, "-c:a", "aac", "-b:a", s.settings.AudioBitrate)
	}
	return append(args, "-movflags", "+faststart", out)
}

func (s *Stitcher) run(ctx context.Context, args []string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	cmd := commandContext(callCtx, s.settings.Binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out after %s", s.settings.Timeout)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// chooseTarget takes A's geometry and rate, then B's, then 1280x720@24.
func chooseTarget(a, b ffprobe.Info) Target {
	t := Target{Width: defaultWidth, Height: defaultHeight, FPS: defaultFPS}
	switch {
	case a.Width > 0 && a.Height > 0:
		t.Width, t.Height = even(a.Width), even(a.Height)
	case b.Width > 0 && b.Height > 0:
		t.Width, t.Height = even(b.Width), even(b.Height)
	}
	switch {
	case a.FPS > 0:
		t.FPS = a.FPS
	case b.FPS > 0:
		t.FPS = b.FPS
	}
	return t
}

// even rounds down to an even dimension for yuv420p.
func even(v int) int {
	if v%2 == 1 {
		return v - 1
	}
	return v
}

func requireInputs(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			return services.Wrap(services.ErrValidation, "stitch", "inputs", "clip path is required", nil)
		}
		info, err := os.Stat(p)
		if err != nil {
			return services.Wrap(services.ErrValidation, "stitch", "inputs", "clip not readable: "+p, err)
		}
		if info.IsDir() {
			return services.Wrap(services.ErrValidation, "stitch", "inputs", "clip is a directory: "+p, nil)
		}
	}
	return nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
