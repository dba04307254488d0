package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
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
	// DefaultTimeout bounds one ffmpeg extraction attempt.
	DefaultTimeout = 60 * time.Second

	lastFrameMargin = 0.1
	shortClipLimit  = 0.5
	seekEndMargin   = 0.05
	stderrTailBytes = 2048
)

// Confidence describes how a boundary frame was obtained.
type Confidence string

const (
	ConfidenceExact    Confidence = "exact"
	ConfidenceFallback Confidence = "fallback"
	ConfidenceFailed   Confidence = "failed"
)

// Boundary is an extracted still frame and where it came from.
type Boundary struct {
	Path       string     `json:"path,omitempty"`
	Timestamp  float64    `json:"timestamp"`
	Confidence Confidence `json:"confidence"`
}

// OK reports whether the boundary produced a frame.
func (b Boundary) OK() bool {
	return b.Confidence != ConfidenceFailed && b.Path != ""
}

// DurationProber reports a clip's duration, 0 when unknown.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, ffprobe.DurationSource)
}

// Extractor grabs first, last and arbitrary frames with ffmpeg.
type Extractor struct {
	binary  string
	prober  DurationProber
	timeout time.Duration
	logger  *slog.Logger
}

// NewExtractor builds an extractor. Empty binary means "ffmpeg" and a zero
// timeout uses DefaultTimeout.
func NewExtractor(binary string, prober DurationProber, timeout time.Duration, logger *slog.Logger) *Extractor {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if prober == nil {
		prober = ffprobe.NewProber("", 0)
	}
	return &Extractor{
		binary:  binary,
		prober:  prober,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "frames"),
	}
}

// ExtractFirst seeks to 0 and grabs one frame.
func (e *Extractor) ExtractFirst(ctx context.Context, video, out string) (Boundary, error) {
	if err := e.grab(ctx, video, out, "-ss", "0", "-i", video, "-frames:v", "1"); err != nil {
		return e.failed(ctx, "first", video, err)
	}
	return Boundary{Path: out, Timestamp: 0, Confidence: ConfidenceExact}, nil
}

// ExtractLast grabs the final frame using a strategy chosen by the probed
// duration:
//   - longer than 0.5s: seek to duration minus 0.1s
//   - 0.5s or shorter: the first frame
//   - unknown: seek from end of stream, then the first frame
//
// A margin seek that yields nothing (a container duration overstated by a
// longer audio track, say) falls through to the end-of-stream chain.
func (e *Extractor) ExtractLast(ctx context.Context, video, out string) (Boundary, error) {
	duration, source := e.prober.Duration(ctx, video)
	logger := logging.WithContext(ctx, e.logger)

	switch {
	case duration > shortClipLimit:
		seek := duration - lastFrameMargin
		seekErr := e.grab(ctx, video, out, "-ss", formatSeconds(seek), "-i", video, "-frames:v", "1")
		if seekErr == nil {
			return Boundary{Path: out, Timestamp: seek, Confidence: ConfidenceExact}, nil
		}
		if ctx.Err() != nil {
			return e.failed(ctx, "last", video, seekErr)
		}
		logging.WarnWithContext(logger, "last-frame seek produced nothing; seeking from end of stream",
			"last_frame_seek_failed",
			logging.String("video", video),
			logging.Float64("duration_seconds", duration),
			logging.Error(seekErr),
			logging.String(logging.FieldImpact, "last frame may be approximate"),
		)
		return e.lastFromEnd(ctx, video, out, seekErr)

	case duration > 0:
		logger.Debug("clip too short for last-frame margin",
			logging.String("video", video),
			logging.Float64("duration_seconds", duration),
		)
		if err := e.grab(ctx, video, out, "-ss", "0", "-i", video, "-frames:v", "1"); err != nil {
			return e.failed(ctx, "last", video, err)
		}
		return Boundary{Path: out, Timestamp: 0, Confidence: ConfidenceFallback}, nil
	}

	logging.WarnWithContext(logger, "clip duration unknown; seeking from end of stream",
		"duration_unknown",
		logging.String("video", video),
		logging.String("duration_source", string(source)),
		logging.String(logging.FieldErrorHint, "check that ffprobe can read the container"),
		logging.String(logging.FieldImpact, "last frame may be approximate"),
	)
	return e.lastFromEnd(ctx, video, out, nil)
}

// lastFromEnd grabs the final decodable frame via an end-of-stream seek and
// falls back to the first frame. prior is an earlier failed attempt, kept in
// the returned error.
func (e *Extractor) lastFromEnd(ctx context.Context, video, out string, prior error) (Boundary, error) {
	eofErr := e.grab(ctx, video, out, "-sseof", "-1", "-i", video, "-update", "1")
	if eofErr == nil {
		return Boundary{Path: out, Timestamp: 0, Confidence: ConfidenceFallback}, nil
	}
	logging.WithContext(ctx, e.logger).Debug("end-of-stream seek failed; using first frame",
		logging.String("video", video),
		logging.Error(eofErr),
	)
	if err := e.grab(ctx, video, out, "-ss", "0", "-i", video, "-frames:v", "1"); err != nil {
		return e.failed(ctx, "last", video, errors.Join(prior, eofErr, err))
	}
	return Boundary{Path: out, Timestamp: 0, Confidence: ConfidenceFallback}, nil
}

// ExtractAt grabs the frame nearest timestamp, clamped to
// [0, duration-0.05] when the duration is known and to max(0, timestamp)
// otherwise.
func (e *Extractor) ExtractAt(ctx context.Context, video string, timestamp float64, out string) (Boundary, error) {
	duration, _ := e.prober.Duration(ctx, video)
	seek := ClampTimestamp(timestamp, duration)
	if err := e.grab(ctx, video, out, "-ss", formatSeconds(seek), "-i", video, "-frames:v", "1"); err != nil {
		return e.failed(ctx, "at", video, err)
	}
	return Boundary{Path: out, Timestamp: seek, Confidence: ConfidenceExact}, nil
}

// ExtractBoundaries extracts the first and last frames concurrently. Both
// boundaries are always returned; the error is the first failure, if any.
func (e *Extractor) ExtractBoundaries(ctx context.Context, video, firstOut, lastOut string) (Boundary, Boundary, error) {
	var first, last Boundary
	var g errgroup.Group
	g.Go(func() error {
		var err error
		first, err = e.ExtractFirst(ctx, video, firstOut)
		return err
	})
	g.Go(func() error {
		var err error
		last, err = e.ExtractLast(ctx, video, lastOut)
		return err
	})
	err := g.Wait()
	return first, last, err
}

// ClampTimestamp applies the seek clamping rules used by ExtractAt.
func ClampTimestamp(timestamp, duration float64) float64 {
	if math.IsNaN(timestamp) || timestamp < 0 {
		timestamp = 0
	}
	if duration > 0 {
		upper := math.Max(0, duration-seekEndMargin)
		if timestamp > upper {
			timestamp = upper
		}
	}
	return timestamp
}

func (e *Extractor) failed(ctx context.Context, boundary, video string, err error) (Boundary, error) {
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), "frame extraction failed",
		"frame_extraction_failed",
		logging.String("boundary", boundary),
		logging.String("video", video),
		logging.Error(err),
		logging.String(logging.FieldImpact, "boundary frame omitted"),
	)
	return Boundary{Confidence: ConfidenceFailed}, services.Wrap(services.ErrMediaProcessing, "frames", "extract "+boundary, video, err)
}

// grab runs one bounded ffmpeg attempt writing a single image to out. The
// attempt succeeds only when out exists and is non-empty afterwards.
func (e *Extractor) grab(ctx context.Context, video, out string, inputArgs ...string) error {
	if strings.TrimSpace(video) == "" || strings.TrimSpace(out) == "" {
		return errors.New("video and output paths are required")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	_ = os.Remove(out)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, inputArgs...)
	args = append(args, out)
	cmd := commandContext(callCtx, e.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out after %s", e.timeout)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String()))
	}
	if !fileutil.NonEmptyFile(out) {
		return errors.New("ffmpeg produced no frame")
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
