package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"reelsmith/internal/services"
)

var commandContext = exec.CommandContext

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Duration     string `json:"duration"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// DurationSource records which probe strategy produced a duration.
type DurationSource string

const (
	DurationContainer DurationSource = "container"
	DurationStream    DurationSource = "stream"
	DurationUnknown   DurationSource = "unknown"
)

// Info is the summary the frame extractor and stitcher need from a clip.
type Info struct {
	Duration       float64        `json:"duration"`
	DurationSource DurationSource `json:"duration_source"`
	HasVideo       bool           `json:"has_video"`
	HasAudio       bool           `json:"has_audio"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	FPS            float64        `json:"fps"`
	VideoCodec     string         `json:"video_codec,omitempty"`
	AudioStreams   int            `json:"audio_streams"`
}

// Prober runs ffprobe with a per-call timeout.
type Prober struct {
	binary  string
	timeout time.Duration
}

// DefaultTimeout bounds one ffprobe call when none is configured.
const DefaultTimeout = 15 * time.Second

// NewProber constructs a Prober. Empty binary means "ffprobe"; a zero timeout
// uses DefaultTimeout.
func NewProber(binary string, timeout time.Duration) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{binary: binary, timeout: timeout}
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	return NewProber(binary, 0).Inspect(ctx, path)
}

// Inspect runs a full stream/format inspection.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}
	output, err := p.run(ctx, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "ffprobe", "inspect", path, err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrMediaProcessing, "ffprobe", "parse", path, err)
	}
	return result, nil
}

// Duration probes the clip duration with two independent ffprobe calls:
// container-level first, then the first video stream. The first strictly
// positive finite value wins. When both fail the duration is 0 and the
// source is DurationUnknown; that is not an error.
func (p *Prober) Duration(ctx context.Context, path string) (float64, DurationSource) {
	strategies := []struct {
		source DurationSource
		args   []string
	}{
		{DurationContainer, []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", "--", path}},
		{DurationStream, []string{"-v", "error", "-select_streams", "v:0", "-show_entries", "stream=duration", "-of", "default=noprint_wrappers=1:nokey=1", "--", path}},
	}
	for _, s := range strategies {
		output, err := p.run(ctx, s.args...)
		if err != nil {
			continue
		}
		if d, ok := firstPositive(output); ok {
			return d, s.source
		}
	}
	return 0, DurationUnknown
}

// Probe inspects path and summarizes it. Duration follows the same ordering
// as Duration: container, then video stream.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return Info{}, err
	}
	return result.Info(), nil
}

// Info summarizes an inspection result.
func (r Result) Info() Info {
	info := Info{DurationSource: DurationUnknown, AudioStreams: r.AudioStreamCount()}
	info.HasAudio = info.AudioStreams > 0
	video, ok := r.VideoStream()
	if ok {
		info.HasVideo = true
		info.Width = video.Width
		info.Height = video.Height
		info.FPS = video.FrameRate()
		info.VideoCodec = video.CodecName
	}
	if d := r.DurationSeconds(); positive(d) {
		info.Duration, info.DurationSource = d, DurationContainer
	} else if ok {
		if d := parseFloat(video.Duration); positive(d) {
			info.Duration, info.DurationSource = d, DurationStream
		}
	}
	return info
}

func (p *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := commandContext(callCtx, p.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffprobe timed out after %s", p.timeout)
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countType("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countType("audio")
}

func (r Result) countType(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, 0 when absent,
// or NaN when ffprobe reported something unparsable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// FrameRate returns r_frame_rate, falling back to avg_frame_rate when the
// nominal rate is missing or implausible. It returns 0 when neither parses.
func (s Stream) FrameRate() float64 {
	if fps := parseRational(s.RFrameRate); fps > 0 && fps <= 240 {
		return fps
	}
	if fps := parseRational(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return 0
}

func parseRational(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	if !found {
		f := parseFloat(value)
		if !positive(f) {
			return 0
		}
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func firstPositive(output []byte) (float64, bool) {
	for _, line := range strings.Split(string(output), "\n") {
		if d := parseFloat(line); positive(d) {
			return d, true
		}
	}
	return 0, false
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
