package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/api"
	"reelsmith/internal/jobs"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/worker"
)

type submitterStub struct {
	got       []worker.Request
	requestID string
}

func (s *submitterStub) Submit(ctx context.Context, req worker.Request) (string, error) {
	if req.Kind == "" {
		return "", services.Wrap(services.ErrValidation, "worker", "submit", "kind is required", nil)
	}
	s.got = append(s.got, req)
	s.requestID, _ = services.RequestIDFromContext(ctx)
	return "job-123", nil
}

type proberStub struct{ info ffprobe.Info }

func (p proberStub) Probe(context.Context, string) (ffprobe.Info, error) { return p.info, nil }

type framesStub struct{ calls []string }

func (f *framesStub) ExtractFirst(_ context.Context, _ string, out string) (frames.Boundary, error) {
	f.calls = append(f.calls, "first:"+out)
	return frames.Boundary{Path: out, Confidence: frames.ConfidenceExact}, nil
}

func (f *framesStub) ExtractLast(_ context.Context, _ string, out string) (frames.Boundary, error) {
	f.calls = append(f.calls, "last:"+out)
	return frames.Boundary{Path: out, Timestamp: 9.9, Confidence: frames.ConfidenceExact}, nil
}

func (f *framesStub) ExtractAt(_ context.Context, _ string, ts float64, out string) (frames.Boundary, error) {
	f.calls = append(f.calls, "at:"+out)
	return frames.Boundary{Path: out, Timestamp: ts, Confidence: frames.ConfidenceExact}, nil
}

type mediaStub struct{ records []mediastore.Record }

func (m mediaStub) List(_ context.Context, projectID string) ([]mediastore.Record, error) {
	var out []mediastore.Record
	for _, rec := range m.records {
		if projectID == "" || rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func serve(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGetJobReturnsStatusShape(t *testing.T) {
	reg := testsupport.NewRegistry(t)
	ctx := context.Background()
	id, err := reg.Create(ctx, jobs.KindMediaGeneration, map[string]any{"provider": "replicate"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.Update(ctx, id, jobs.Progressed(40, "waiting on provider")); err != nil {
		t.Fatalf("update: %v", err)
	}

	h := api.NewRouter(api.Options{Jobs: reg})
	w := serve(t, h, http.MethodGet, "/api/jobs/"+id, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	raw := decode[map[string]any](t, w)
	for _, key := range []string{"id", "kind", "status", "progress", "message"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("response missing %q: %v", key, raw)
		}
	}
	if _, ok := raw["result"]; ok {
		t.Fatalf("running job should not carry a result: %v", raw)
	}
	if raw["status"] != "running" || raw["progress"].(float64) != 40 {
		t.Fatalf("unexpected job view: %v", raw)
	}
}

func TestGetJobFailedCarriesErrorOnly(t *testing.T) {
	reg := testsupport.NewRegistry(t)
	ctx := context.Background()
	id, _ := reg.Create(ctx, jobs.KindVoice, nil)
	if err := reg.Update(ctx, id, jobs.Failed("configuration-error: elevenlabs: api key not configured")); err != nil {
		t.Fatalf("update: %v", err)
	}

	w := serve(t, api.NewRouter(api.Options{Jobs: reg}), http.MethodGet, "/api/jobs/"+id, nil, nil)
	job := decode[api.Job](t, w)
	if job.Status != "failed" || !strings.HasPrefix(job.Error, "configuration-error") || job.Result != nil {
		t.Fatalf("unexpected failed view: %+v", job)
	}
}

func TestGetUnknownJobIs404(t *testing.T) {
	h := api.NewRouter(api.Options{Jobs: testsupport.NewRegistry(t)})
	w := serve(t, h, http.MethodGet, "/api/jobs/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	body := decode[api.ErrorResponse](t, w)
	if body.Kind != services.KindNotFound {
		t.Fatalf("expected not-found kind, got %+v", body)
	}
}

func TestListJobsFiltersAndCounts(t *testing.T) {
	reg := testsupport.NewRegistry(t)
	ctx := context.Background()
	running, _ := reg.Create(ctx, jobs.KindMediaGeneration, nil)
	done, _ := reg.Create(ctx, jobs.KindContinuity, nil)
	if err := reg.Update(ctx, done, jobs.Completed(json.RawMessage(`{"path":"x.mp4"}`), "done")); err != nil {
		t.Fatalf("update: %v", err)
	}

	h := api.NewRouter(api.Options{Jobs: reg})
	all := decode[api.JobListResponse](t, serve(t, h, http.MethodGet, "/api/jobs", nil, nil))
	if len(all.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all.Jobs))
	}
	if all.Stats["running"] != 1 || all.Stats["completed"] != 1 || all.Stats["failed"] != 0 {
		t.Fatalf("unexpected stats: %v", all.Stats)
	}

	filtered := decode[api.JobListResponse](t, serve(t, h, http.MethodGet, "/api/jobs?status=running", nil, nil))
	if len(filtered.Jobs) != 1 || filtered.Jobs[0].ID != running {
		t.Fatalf("unexpected filtered list: %+v", filtered.Jobs)
	}
	byKind := decode[api.JobListResponse](t, serve(t, h, http.MethodGet, "/api/jobs?kind=continuity-stitch", nil, nil))
	if len(byKind.Jobs) != 1 || byKind.Jobs[0].ID != done || string(byKind.Jobs[0].Result) != `{"path":"x.mp4"}` {
		t.Fatalf("unexpected kind list: %+v", byKind.Jobs)
	}
}

func TestSubmitJob(t *testing.T) {
	sub := &submitterStub{}
	h := api.NewRouter(api.Options{Submitter: sub})

	w := serve(t, h, http.MethodPost, "/api/jobs", worker.Request{Kind: jobs.KindVoice, Text: "hello"},
		http.Header{api.RequestIDHeader: {"req-42"}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[api.SubmitResponse](t, w); resp.ID != "job-123" {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	if got := w.Header().Get("Location"); got != "/api/jobs/job-123" {
		t.Fatalf("unexpected location %q", got)
	}
	if len(sub.got) != 1 || sub.got[0].Text != "hello" {
		t.Fatalf("submitter saw %+v", sub.got)
	}
	if sub.requestID != "req-42" {
		t.Fatalf("expected request id to reach the submitter, got %q", sub.requestID)
	}

	bad := serve(t, h, http.MethodPost, "/api/jobs", map[string]any{"text": "no kind"}, nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation error, got %d", bad.Code)
	}
	unknown := serve(t, h, http.MethodPost, "/api/jobs", map[string]any{"kind": "voice-generation", "bogus": 1}, nil)
	if unknown.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", unknown.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	h := api.NewRouter(api.Options{Jobs: testsupport.NewRegistry(t), Token: "secret"})

	if w := serve(t, h, http.MethodGet, "/api/jobs", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/jobs", nil, http.Header{"Authorization": {"Bearer wrong"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/jobs", nil, http.Header{"Authorization": {"Bearer secret"}}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("healthz should bypass auth, got %d", w.Code)
	}
}

func TestProbeEndpoint(t *testing.T) {
	clip := testsupport.WriteClip(t, t.TempDir(), "clip.mp4", 16)
	h := api.NewRouter(api.Options{Prober: proberStub{info: ffprobe.Info{Duration: 5, HasVideo: true, Width: 1280, Height: 720}}})

	w := serve(t, h, http.MethodGet, "/api/media/probe?path="+clip, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.ProbeResponse](t, w)
	if resp.Info.Duration != 5 || resp.Info.Width != 1280 {
		t.Fatalf("unexpected probe response: %+v", resp)
	}

	if w := serve(t, h, http.MethodGet, "/api/media/probe", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without path, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/media/probe?path=/does/not/exist.mp4", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", w.Code)
	}
}

func TestFrameEndpointDefaultsOutput(t *testing.T) {
	dir := t.TempDir()
	clip := testsupport.WriteClip(t, dir, "shot01.mp4", 16)
	stub := &framesStub{}
	framesDir := filepath.Join(dir, "images")
	h := api.NewRouter(api.Options{Frames: stub, FramesDir: framesDir})

	w := serve(t, h, http.MethodPost, "/api/frames", api.FrameRequest{Video: clip, Position: "last"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.FrameResponse](t, w)
	want := filepath.Join(framesDir, "shot01_last.png")
	if resp.Boundary.Path != want || resp.Boundary.Timestamp != 9.9 {
		t.Fatalf("unexpected boundary: %+v", resp.Boundary)
	}

	serve(t, h, http.MethodPost, "/api/frames", api.FrameRequest{Video: clip, Position: "at", Timestamp: 2.5}, nil)
	if got := stub.calls[len(stub.calls)-1]; got != "at:"+filepath.Join(framesDir, "shot01_at_2.500.png") {
		t.Fatalf("unexpected at call %q", got)
	}

	if w := serve(t, h, http.MethodPost, "/api/frames", api.FrameRequest{Video: clip, Position: "middle"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown position, got %d", w.Code)
	}
}

func TestListMediaByProject(t *testing.T) {
	h := api.NewRouter(api.Options{Media: mediaStub{records: []mediastore.Record{
		{ID: "a", ProjectID: "p1", Kind: mediastore.KindVideo, Path: "/m/a.mp4"},
		{ID: "b", ProjectID: "p2", Kind: mediastore.KindImage, Path: "/m/b.png"},
	}}})

	resp := decode[api.MediaListResponse](t, serve(t, h, http.MethodGet, "/api/media?project=p2", nil, nil))
	if len(resp.Records) != 1 || resp.Records[0].ID != "b" {
		t.Fatalf("unexpected records: %+v", resp.Records)
	}
	empty := decode[api.MediaListResponse](t, serve(t, h, http.MethodGet, "/api/media?project=none", nil, nil))
	if empty.Records == nil || len(empty.Records) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", empty.Records)
	}
}

func TestMissingCollaboratorsAnswer503(t *testing.T) {
	h := api.NewRouter(api.Options{})
	for _, path := range []string{"/api/jobs", "/api/status", "/api/media"} {
		if w := serve(t, h, http.MethodGet, path, nil, nil); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := api.NewRouter(api.Options{})
	w := serve(t, h, http.MethodGet, "/healthz", nil, nil)
	if w.Header().Get(api.RequestIDHeader) == "" {
		t.Fatal("expected a minted request id")
	}
	w = serve(t, h, http.MethodGet, "/healthz", nil, http.Header{api.RequestIDHeader: {"abc"}})
	if got := w.Header().Get(api.RequestIDHeader); got != "abc" {
		t.Fatalf("expected caller request id, got %q", got)
	}
}
