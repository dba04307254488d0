package stitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	sampleRate    = 48000
	channelLayout = "stereo"
)

// Strategy names the stream layout of a join.
type Strategy string

const (
	StrategyVideoOnly   Strategy = "video-only"
	StrategySingleTrack Strategy = "single-track"
	StrategyDualTrack   Strategy = "dual-track"
)

// AudioSource records which input clips contributed real audio.
type AudioSource string

const (
	AudioNone AudioSource = "none"
	AudioA    AudioSource = "a"
	AudioB    AudioSource = "b"
	AudioBoth AudioSource = "both"
)

// Target is the common geometry both clips are normalized to.
type Target struct {
	Width  int
	Height int
	FPS    float64
}

// Clip is the part of a probe the filter graph depends on.
type Clip struct {
	HasAudio bool
	Duration float64
}

// Plan describes one A+B join.
type Plan struct {
	Target Target
	A      Clip
	B      Clip
	// DropFirst removes B's first video frame and one frame of B's audio.
	DropFirst bool
}

// Graph is a rendered -filter_complex plus the output pads to map.
type Graph struct {
	Filter      string
	VideoPad    string
	AudioPad    string
	Strategy    Strategy
	AudioSource AudioSource
	// Trimmed is the amount removed from the start of B, in seconds.
	Trimmed float64
}

// FrameDuration is the length of one frame at the target rate.
func (t Target) FrameDuration() float64 {
	if t.FPS <= 0 {
		return 0
	}
	return 1 / t.FPS
}

// BuildFilterGraph renders the filter graph for plan. Inputs are expected as
// [0] for clip A and [1] for clip B. When exactly one clip has audio the
// other side gets a generated silent segment of its own length, so the
// output carries one continuous track.
func BuildFilterGraph(plan Plan) Graph {
	t := plan.Target
	trim := 0.0
	if plan.DropFirst {
		trim = t.FrameDuration()
	}

	var chains []string
	chains = append(chains, "[0:v]"+normalizeVideo(t)+"[v0]")
	videoB := "[1:v]" + normalizeVideo(t)
	if plan.DropFirst {
		videoB += ",trim=start_frame=1,setpts=PTS-STARTPTS"
	}
	chains = append(chains, videoB+"[v1]")

	graph := Graph{VideoPad: "[v]", Trimmed: trim}
	switch {
	case plan.A.HasAudio && plan.B.HasAudio:
		graph.Strategy = StrategyDualTrack
		graph.AudioSource = AudioBoth
	case plan.A.HasAudio || plan.B.HasAudio:
		graph.Strategy = StrategySingleTrack
		if plan.A.HasAudio {
			graph.AudioSource = AudioA
		} else {
			graph.AudioSource = AudioB
		}
	default:
		graph.Strategy = StrategyVideoOnly
		graph.AudioSource = AudioNone
	}

	if graph.Strategy == StrategyVideoOnly {
		chains = append(chains, "[v0][v1]concat=n=2:v=1:a=0[v]")
		graph.Filter = strings.Join(chains, ";")
		return graph
	}

	if plan.A.HasAudio {
		chains = append(chains, "[0:a]"+normalizeAudio()+"[a0]")
	} else {
		chains = append(chains, silence(plan.A.Duration)+"[a0]")
	}
	if plan.B.HasAudio {
		audioB := "[1:a]"
		if plan.DropFirst {
			audioB += "atrim=start=" + formatSeconds(trim) + ",asetpts=PTS-STARTPTS,"
		}
		chains = append(chains, audioB+normalizeAudio()+"[a1]")
	} else {
		chains = append(chains, silence(math.Max(0, plan.B.Duration-trim))+"[a1]")
	}
	chains = append(chains, "[v0][a0][v1][a1]concat=n=2:v=1:a=1[v][a]")
	graph.AudioPad = "[a]"
	graph.Filter = strings.Join(chains, ";")
	return graph
}

func normalizeVideo(t Target) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s,format=yuv420p",
		t.Width, t.Height, t.Width, t.Height, formatRate(t.FPS),
	)
}

func normalizeAudio() string {
	return fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s:sample_fmts=fltp", sampleRate, channelLayout)
}

func silence(duration float64) string {
	return fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d,atrim=duration=%s,%s",
		channelLayout, sampleRate, formatSeconds(duration), normalizeAudio())
}

func formatRate(fps float64) string {
	return strconv.FormatFloat(math.Round(fps*1000)/1000, 'f', -1, 64)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
