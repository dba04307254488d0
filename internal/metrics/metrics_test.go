package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesJobCounters(t *testing.T) {
	c := New()
	c.JobSubmitted("voice-generation")
	c.JobFinished("voice-generation", "failed", "configuration-error", 0.2)
	c.ProviderAwait("elevenlabs", false, 0.1)
	c.MediaOperation("stitch", true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`reelsmith_jobs_submitted_total{kind="voice-generation"} 1`,
		`reelsmith_jobs_finished_total{error_kind="configuration-error",kind="voice-generation",status="failed"} 1`,
		`reelsmith_jobs_running 0`,
		`reelsmith_media_operations_total{operation="stitch",outcome="ok"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.JobSubmitted("x")
	c.JobFinished("x", "completed", "", 1)
	c.ProviderAwait("p", true, 1)
	c.MediaOperation("frames", false)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.JobSubmitted("scene-render")
	families, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "reelsmith_jobs_submitted_total" && len(f.GetMetric()) > 0 {
			t.Fatal("second collector saw the first collector's samples")
		}
	}
}
