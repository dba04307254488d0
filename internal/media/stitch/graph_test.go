package stitch

import (
	"strings"
	"testing"
)

func testPlan(audioA, audioB bool) Plan {
	return Plan{
		Target:    Target{Width: 1280, Height: 720, FPS: 24},
		A:         Clip{HasAudio: audioA, Duration: 5},
		B:         Clip{HasAudio: audioB, Duration: 5},
		DropFirst: true,
	}
}

func TestBuildFilterGraphVideoOnly(t *testing.T) {
	graph := BuildFilterGraph(testPlan(false, false))
	if graph.Strategy != StrategyVideoOnly || graph.AudioSource != AudioNone {
		t.Fatalf("unexpected strategy %s/%s", graph.Strategy, graph.AudioSource)
	}
	if graph.AudioPad != "" {
		t.Fatalf("expected no audio pad, got %q", graph.AudioPad)
	}
	if !strings.HasSuffix(graph.Filter, "[v0][v1]concat=n=2:v=1:a=0[v]") {
		t.Fatalf("unexpected concat: %s", graph.Filter)
	}
	if strings.Contains(graph.Filter, "anullsrc") || strings.Contains(graph.Filter, "atrim") {
		t.Fatalf("video-only graph must not touch audio: %s", graph.Filter)
	}
}

func TestBuildFilterGraphNormalizesBothClips(t *testing.T) {
	graph := BuildFilterGraph(testPlan(false, false))
	norm := "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=24,format=yuv420p"
	if !strings.Contains(graph.Filter, "[0:v]"+norm+"[v0]") {
		t.Fatalf("clip A not normalized: %s", graph.Filter)
	}
	if !strings.Contains(graph.Filter, "[1:v]"+norm+",trim=start_frame=1,setpts=PTS-STARTPTS[v1]") {
		t.Fatalf("clip B not normalized and trimmed: %s", graph.Filter)
	}
}

func TestBuildFilterGraphDualTrackTrimsOneFrameOfAudio(t *testing.T) {
	graph := BuildFilterGraph(testPlan(true, true))
	if graph.Strategy != StrategyDualTrack || graph.AudioSource != AudioBoth {
		t.Fatalf("unexpected strategy %s/%s", graph.Strategy, graph.AudioSource)
	}
	if !strings.Contains(graph.Filter, "[1:a]atrim=start=0.041667,asetpts=PTS-STARTPTS,aformat=") {
		t.Fatalf("expected one-frame audio trim on B: %s", graph.Filter)
	}
	if strings.Contains(graph.Filter, "[0:a]atrim") {
		t.Fatalf("clip A audio must not be trimmed: %s", graph.Filter)
	}
	if !strings.HasSuffix(graph.Filter, "[v0][a0][v1][a1]concat=n=2:v=1:a=1[v][a]") {
		t.Fatalf("unexpected concat: %s", graph.Filter)
	}
	if graph.Trimmed != 1.0/24 {
		t.Fatalf("expected trimmed 1/24, got %v", graph.Trimmed)
	}
}

func TestBuildFilterGraphSingleTrackSilencesMissingSide(t *testing.T) {
	graph := BuildFilterGraph(testPlan(false, true))
	if graph.Strategy != StrategySingleTrack || graph.AudioSource != AudioB {
		t.Fatalf("unexpected strategy %s/%s", graph.Strategy, graph.AudioSource)
	}
	if !strings.Contains(graph.Filter, "anullsrc=channel_layout=stereo:sample_rate=48000,atrim=duration=5.000000") {
		t.Fatalf("expected silent segment sized to clip A: %s", graph.Filter)
	}
	if strings.Contains(graph.Filter, "[0:a]") {
		t.Fatalf("clip A has no audio stream to reference: %s", graph.Filter)
	}

	graph = BuildFilterGraph(testPlan(true, false))
	if graph.AudioSource != AudioA {
		t.Fatalf("expected audio from A, got %s", graph.AudioSource)
	}
	if !strings.Contains(graph.Filter, "atrim=duration=4.958333") {
		t.Fatalf("expected silent segment sized to trimmed clip B: %s", graph.Filter)
	}
	if strings.Contains(graph.Filter, "[1:a]") {
		t.Fatalf("clip B has no audio stream to reference: %s", graph.Filter)
	}
}

func TestBuildFilterGraphWithoutDropKeepsFirstFrame(t *testing.T) {
	plan := testPlan(true, true)
	plan.DropFirst = false
	graph := BuildFilterGraph(plan)
	if strings.Contains(graph.Filter, "trim=start_frame") || strings.Contains(graph.Filter, "atrim=start") {
		t.Fatalf("plain concat must not trim: %s", graph.Filter)
	}
	if graph.Trimmed != 0 {
		t.Fatalf("expected no trim, got %v", graph.Trimmed)
	}
}

func TestFormatRate(t *testing.T) {
	cases := map[float64]string{24: "24", 30000.0 / 1001: "29.97", 25.5: "25.5"}
	for in, want := range cases {
		if got := formatRate(in); got != want {
			t.Fatalf("formatRate(%v) = %q, want %q", in, got, want)
		}
	}
}
