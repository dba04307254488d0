package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"reelsmith/internal/jobs"
	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/media/frames"
	"reelsmith/internal/mediastore"
	"reelsmith/internal/services"
	"reelsmith/internal/worker"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-Id"

const maxRequestBody = 1 << 20

// JobSource reads the job registry.
type JobSource interface {
	List(ctx context.Context) []jobs.Job
	Get(ctx context.Context, id string) (jobs.Job, error)
	Stats(ctx context.Context) map[jobs.Status]int
}

// Submitter starts jobs.
type Submitter interface {
	Submit(ctx context.Context, req worker.Request) (string, error)
}

// Prober summarizes media files.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Info, error)
}

// FrameExtractor grabs stills from clips.
type FrameExtractor interface {
	ExtractFirst(ctx context.Context, video, out string) (frames.Boundary, error)
	ExtractLast(ctx context.Context, video, out string) (frames.Boundary, error)
	ExtractAt(ctx context.Context, video string, timestamp float64, out string) (frames.Boundary, error)
}

// MediaLister lists indexed media records.
type MediaLister interface {
	List(ctx context.Context, projectID string) ([]mediastore.Record, error)
}

// Options wires the router to its collaborators. Nil collaborators make the
// matching routes answer 503.
type Options struct {
	Jobs      JobSource
	Submitter Submitter
	Prober    Prober
	Frames    FrameExtractor
	Media     MediaLister
	Status    func(ctx context.Context) StatusResponse
	Metrics   http.Handler
	// Token enables bearer auth on /api routes when set.
	Token string
	// FramesDir receives stills when a frame request names no output.
	FramesDir string
	Logger    *slog.Logger
}

type server struct {
	opts   Options
	logger *slog.Logger
}

// NewRouter builds the HTTP handler for the status surface.
func NewRouter(opts Options) http.Handler {
	s := &server{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "api")}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Mount("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.Token))
		r.Get("/status", s.handleStatus)
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/media", s.handleListMedia)
		r.Get("/media/probe", s.handleProbe)
		r.Post("/frames", s.handleFrame)
	})
	return r
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("status unavailable"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.opts.Status(r.Context()))
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Jobs == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("job registry unavailable"))
		return
	}
	filter := map[string]bool{}
	for _, value := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			filter[trimmed] = true
		}
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))

	list := s.opts.Jobs.List(r.Context())
	out := make([]Job, 0, len(list))
	for _, job := range list {
		if len(filter) > 0 && !filter[string(job.Status)] {
			continue
		}
		if kind != "" && string(job.Kind) != kind {
			continue
		}
		out = append(out, FromJob(job))
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: out, Stats: FromStats(s.opts.Jobs.Stats(r.Context()))})
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.opts.Jobs == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("job registry unavailable"))
		return
	}
	job, err := s.opts.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.opts.Submitter == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("worker unavailable"))
		return
	}
	var req worker.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := s.opts.Submitter.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id})
}

func (s *server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	if s.opts.Media == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("media store unavailable"))
		return
	}
	records, err := s.opts.Media.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("project")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []mediastore.Record{}
	}
	s.writeJSON(w, http.StatusOK, MediaListResponse{Records: records})
}

func (s *server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.opts.Prober == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("prober unavailable"))
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("path query parameter is required"))
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrNotFound, "api", "probe", path, err))
		return
	}
	info, err := s.opts.Prober.Probe(r.Context(), path)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ProbeResponse{Path: path, Info: info})
}

func (s *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.opts.Frames == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("frame extractor unavailable"))
		return
	}
	var req FrameRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	req.Video = strings.TrimSpace(req.Video)
	if req.Video == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("video is required"))
		return
	}
	if _, err := os.Stat(req.Video); err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrNotFound, "api", "frame", req.Video, err))
		return
	}
	out := strings.TrimSpace(req.Output)
	if out == "" {
		out = DefaultFramePath(s.opts.FramesDir, req)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("create frame directory: %w", err))
		return
	}

	var (
		boundary frames.Boundary
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(req.Position)) {
	case PositionFirst:
		boundary, err = s.opts.Frames.ExtractFirst(r.Context(), req.Video, out)
	case PositionLast, "":
		boundary, err = s.opts.Frames.ExtractLast(r.Context(), req.Video, out)
	case PositionAt:
		boundary, err = s.opts.Frames.ExtractAt(r.Context(), req.Video, req.Timestamp, out)
	default:
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unknown position %q (want first, last or at)", req.Position))
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FrameResponse{Boundary: boundary})
}

// DefaultFramePath names the still for req inside dir.
func DefaultFramePath(dir string, req FrameRequest) string {
	base := strings.TrimSuffix(filepath.Base(req.Video), filepath.Ext(req.Video))
	position := strings.ToLower(strings.TrimSpace(req.Position))
	switch position {
	case "":
		position = PositionLast
	case PositionAt:
		position = "at_" + strconv.FormatFloat(req.Timestamp, 'f', 3, 64)
	}
	return filepath.Join(dir, base+"_"+position+".png")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, statusFor(err), err)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	body := ErrorResponse{Error: err.Error()}
	if kind := services.KindOf(err); kind != services.KindInternal {
		body.Kind = kind
	}
	s.writeJSON(w, status, body)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

// requestID reuses the caller's X-Request-Id or mints one, stamping it on
// the request context for logging and job correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithContext(r.Context(), s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
