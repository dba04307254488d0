// Package vertex implements Veo video generation on Vertex AI through the
// predictLongRunning and fetchPredictOperation endpoints.
package vertex

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/media/refimage"
	"reelsmith/internal/objectstore"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

const (
	name          = "vertex"
	storageHost   = "https://storage.googleapis.com/"
	imageMimeType = "image/jpeg"
)

var modelAliases = map[string]string{
	"veo-3.1": "veo-3.1-generate-preview",
	"veo-3":   "veo-3.0-generate-001",
	"veo-2":   "veo-2.0-generate-001",
}

// Client submits long-running Veo predictions.
type Client struct {
	projectID  string
	location   string
	model      string
	baseURL    string
	tempDir    string
	tokens     TokenSource
	uploader   objectstore.Uploader
	images     refimage.Encoder
	httpClient *http.Client
}

var _ providers.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the regional API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithUploader publishes frames to a bucket and sends gcsUri references
// instead of inline bytes.
func WithUploader(u objectstore.Uploader) Option {
	return func(c *Client) {
		c.uploader = u
	}
}

// WithTokenSource overrides the configured token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTempDir sets where inline video responses are decoded.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.tempDir = dir
	}
}

// WithImageEncoder sets the inline image size limits.
func WithImageEncoder(enc refimage.Encoder) Option {
	return func(c *Client) {
		c.images = enc
	}
}

// New builds a client from configuration. AccessToken wins over
// TokenCommand.
func New(cfg config.Vertex, opts ...Option) *Client {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-central1"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	c := &Client{
		projectID:  strings.TrimSpace(cfg.ProjectID),
		location:   location,
		model:      strings.TrimSpace(cfg.Model),
		baseURL:    base,
		images:     refimage.NewEncoder(0, 0),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	switch {
	case strings.TrimSpace(cfg.AccessToken) != "":
		c.tokens = staticToken(strings.TrimSpace(cfg.AccessToken))
	case strings.TrimSpace(cfg.TokenCommand) != "":
		c.tokens = newCommandToken(cfg.TokenCommand)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements providers.Client.
func (c *Client) Name() string { return name }

type imageRef struct {
	GCSURI   string `json:"gcsUri,omitempty"`
	Bytes    string `json:"bytesBase64Encoded,omitempty"`
	MimeType string `json:"mimeType"`
}

type referenceImage struct {
	Image         imageRef `json:"image"`
	ReferenceType string   `json:"referenceType"`
}

type instance struct {
	Prompt          string           `json:"prompt"`
	Image           *imageRef        `json:"image,omitempty"`
	LastFrame       *imageRef        `json:"lastFrame,omitempty"`
	ReferenceImages []referenceImage `json:"referenceImages,omitempty"`
}

type predictRequest struct {
	Instances  []instance     `json:"instances"`
	Parameters map[string]any `json:"parameters"`
}

// Submit starts a prediction. Start and end frames cannot be combined with
// reference images. A start or end frame given without the other is dropped
// because Veo rejects half-specified interpolation.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.Handle, error) {
	if c.projectID == "" {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "submit", "project id not configured", nil)
	}
	if c.tokens == nil {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "submit", "access token or token command not configured", nil)
	}
	if (req.StartFrame != "" || req.EndFrame != "") && len(req.ReferenceImages) > 0 {
		return providers.Handle{}, services.Wrap(services.ErrValidation, name, "submit", "start/end frame cannot be combined with reference images", nil)
	}
	start, end := req.StartFrame, req.EndFrame
	if (start == "") != (end == "") {
		start, end = "", ""
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "token", "", err)
	}

	inst := instance{Prompt: req.Prompt}
	if start != "" {
		if inst.Image, err = c.imageRef(ctx, start); err != nil {
			return providers.Handle{}, err
		}
		if inst.LastFrame, err = c.imageRef(ctx, end); err != nil {
			return providers.Handle{}, err
		}
	}
	for _, path := range req.ReferenceImages {
		ref, err := c.imageRef(ctx, path)
		if err != nil {
			return providers.Handle{}, err
		}
		inst.ReferenceImages = append(inst.ReferenceImages, referenceImage{Image: *ref, ReferenceType: "asset"})
	}

	params := map[string]any{"sampleCount": 1}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.DurationSeconds > 0 {
		params["durationSeconds"] = req.DurationSeconds
	}
	if req.Resolution != "" {
		params["resolution"] = req.Resolution
	}
	params["generateAudio"] = req.GenerateAudio

	model := c.modelPath(req.Model)
	var op struct {
		Name string `json:"name"`
	}
	err = providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "submit",
		Method:   http.MethodPost,
		URL:      fmt.Sprintf("%s/projects/%s/locations/%s/%s:predictLongRunning", c.baseURL, c.projectID, c.location, model),
		Header:   providers.BearerHeader(token),
		Body:     predictRequest{Instances: []instance{inst}, Parameters: params},
	}, &op)
	if err != nil {
		return providers.Handle{}, err
	}
	if op.Name == "" {
		return providers.Handle{}, services.Wrap(services.ErrProviderRejected, name, "submit", "response missing operation name", nil)
	}
	return providers.Handle{
		Provider: name,
		ID:       op.Name,
		PollURL:  fmt.Sprintf("%s/projects/%s/locations/%s/%s:fetchPredictOperation", c.baseURL, c.projectID, c.location, model),
		WorkDir:  req.WorkDir,
	}, nil
}

func (c *Client) modelPath(requested string) string {
	model := strings.TrimSpace(requested)
	if model == "" {
		model = c.model
	}
	if strings.HasPrefix(model, "publishers/") {
		return model
	}
	model = strings.TrimPrefix(model, "google/")
	if alias, ok := modelAliases[model]; ok {
		model = alias
	}
	return "publishers/google/models/" + model
}

func (c *Client) imageRef(ctx context.Context, path string) (*imageRef, error) {
	if c.uploader != nil {
		key := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(path))
		uri, err := c.uploader.Upload(ctx, key, path, imageMimeType)
		if err != nil {
			return nil, err
		}
		return &imageRef{GCSURI: uri, MimeType: imageMimeType}, nil
	}
	data, mime, err := c.images.Base64(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "encode image", path, err)
	}
	return &imageRef{Bytes: data, MimeType: mime}, nil
}

type video struct {
	GCSURI   string `json:"gcsUri"`
	Bytes    string `json:"bytesBase64Encoded"`
	MimeType string `json:"mimeType"`
}

type operation struct {
	Done  bool `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Metadata struct {
		ProgressPercentage *float64 `json:"progressPercentage"`
	} `json:"metadata"`
	Response struct {
		Videos                  []video  `json:"videos"`
		RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
	} `json:"response"`
}

func (c *Client) fetchOperation(ctx context.Context, h providers.Handle) (operation, string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return operation{}, "", services.Wrap(services.ErrConfiguration, name, "token", "", err)
	}
	var op operation
	err = providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "poll",
		Method:   http.MethodPost,
		URL:      h.PollURL,
		Header:   providers.BearerHeader(token),
		Body:     map[string]string{"operationName": h.ID},
	}, &op)
	return op, token, err
}

// Poll reports done+error as failed and done without videos as failed with
// the safety filter reasons when present.
func (c *Client) Poll(ctx context.Context, h providers.Handle) (providers.Status, error) {
	if c.tokens == nil {
		return providers.Status{}, services.Wrap(services.ErrConfiguration, name, "poll", "access token or token command not configured", nil)
	}
	op, _, err := c.fetchOperation(ctx, h)
	if err != nil {
		return providers.Status{}, err
	}
	progress := -1
	if p := op.Metadata.ProgressPercentage; p != nil {
		progress = int(*p)
	}
	if !op.Done {
		return providers.Status{State: providers.StatePending, Progress: progress}, nil
	}
	if op.Error != nil {
		return providers.Status{State: providers.StateFailed, Progress: -1, Reason: "operation failed: " + op.Error.Message}, nil
	}
	if len(op.Response.Videos) == 0 {
		reason := "operation returned no video"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reason += ": " + strings.Join(op.Response.RAIMediaFilteredReasons, "; ")
		}
		return providers.Status{State: providers.StateFailed, Progress: -1, Reason: reason}, nil
	}
	return providers.Status{State: providers.StateSucceeded, Progress: 100}, nil
}

// Fetch returns the first video. gcsUri results become authenticated
// storage.googleapis.com downloads; inline bytes are decoded to a local
// file.
func (c *Client) Fetch(ctx context.Context, h providers.Handle) ([]providers.Output, error) {
	op, token, err := c.fetchOperation(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(op.Response.Videos) == 0 {
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "operation returned no video", nil)
	}
	v := op.Response.Videos[0]
	mime := v.MimeType
	if mime == "" {
		mime = "video/mp4"
	}
	switch {
	case strings.HasPrefix(v.GCSURI, "gs://"):
		return []providers.Output{{
			URL:      storageHost + strings.TrimPrefix(v.GCSURI, "gs://"),
			MimeType: mime,
			Header:   providers.BearerHeader(token),
		}}, nil
	case v.Bytes != "":
		path, err := c.decodeInline(h.WorkDir, v.Bytes)
		if err != nil {
			return nil, err
		}
		return []providers.Output{{LocalPath: path, MimeType: mime}}, nil
	default:
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "video has neither gcsUri nor inline bytes", nil)
	}
}

// decodeInline writes base64 video bytes into dir, falling back to the
// client's temp dir when the handle carries no work dir.
func (c *Client) decodeInline(dir, encoded string) (string, error) {
	if dir == "" {
		dir = c.tempDir
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", services.Wrap(services.ErrMediaProcessing, name, "decode video", dir, err)
		}
	}
	file, err := os.CreateTemp(dir, "vertex-*.mp4")
	if err != nil {
		return "", services.Wrap(services.ErrMediaProcessing, name, "decode video", "", err)
	}
	_, copyErr := io.Copy(file, base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded)))
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(file.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", services.Wrap(services.ErrProviderRejected, name, "decode video", "", copyErr)
	}
	return file.Name(), nil
}
