// Package replicate implements the Replicate predictions backend for video
// and image generation.
package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/media/refimage"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

const (
	name           = "replicate"
	defaultBaseURL = "https://api.replicate.com/v1"
)

// Client talks to the Replicate HTTP API using model aliases, not version ids.
type Client struct {
	token      string
	baseURL    string
	videoModel string
	imageModel string
	httpClient *http.Client
	images     refimage.Encoder
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

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithImageEncoder sets the reference image size limits.
func WithImageEncoder(enc refimage.Encoder) Option {
	return func(c *Client) {
		c.images = enc
	}
}

// New builds a client. A missing token is reported by Submit, not here, so
// the daemon can start without every provider configured.
func New(cfg config.Replicate, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	c := &Client{
		token:      strings.TrimSpace(cfg.APIToken),
		baseURL:    base,
		videoModel: cfg.VideoModel,
		imageModel: cfg.ImageModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		images:     refimage.NewEncoder(0, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements providers.Client.
func (c *Client) Name() string { return name }

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  any             `json:"error"`
	Output json.RawMessage `json:"output"`
	Logs   string          `json:"logs"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Submit creates a prediction against the model's alias endpoint.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.Handle, error) {
	if c.token == "" {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "submit", "api token not configured", nil)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.videoModel
		if req.Mode == providers.ModeImage {
			model = c.imageModel
		}
	}
	owner, modelName, ok := strings.Cut(model, "/")
	if !ok || owner == "" || modelName == "" {
		return providers.Handle{}, services.Wrap(services.ErrValidation, name, "submit", fmt.Sprintf("model %q must be owner/name", model), nil)
	}

	var input map[string]any
	var err error
	if req.Mode == providers.ModeImage {
		input, err = c.imageInput(model, req)
	} else {
		input, err = c.videoInput(model, req)
	}
	if err != nil {
		return providers.Handle{}, err
	}

	var created prediction
	err = providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "submit",
		Method:   http.MethodPost,
		URL:      fmt.Sprintf("%s/models/%s/%s/predictions", c.baseURL, owner, modelName),
		Header:   providers.BearerHeader(c.token),
		Body:     map[string]any{"input": input},
	}, &created)
	if err != nil {
		return providers.Handle{}, err
	}
	if created.ID == "" {
		return providers.Handle{}, services.Wrap(services.ErrProviderRejected, name, "submit", "response missing prediction id", nil)
	}
	return providers.Handle{
		Provider: name,
		ID:       created.ID,
		PollURL:  c.baseURL + "/predictions/" + created.ID,
	}, nil
}

func (c *Client) videoInput(model string, req providers.Request) (map[string]any, error) {
	input := map[string]any{"prompt": req.Prompt}
	lower := strings.ToLower(model)
	lastKey := "last_frame"
	if strings.Contains(lower, "seedance") {
		lastKey = "last_frame_image"
	}
	if req.StartFrame != "" {
		url, err := c.dataURL(req.StartFrame)
		if err != nil {
			return nil, err
		}
		input["image"] = url
	}
	if req.EndFrame != "" {
		url, err := c.dataURL(req.EndFrame)
		if err != nil {
			return nil, err
		}
		input[lastKey] = url
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = 8
	}
	input["duration"] = duration

	switch {
	case strings.Contains(lower, "kling"):
		// Kling only accepts duration reliably across versions.
	case strings.Contains(lower, "seedance"):
		input["resolution"] = orDefault(req.Resolution, "1080p")
		input["aspect_ratio"] = orDefault(req.AspectRatio, "16:9")
		input["fps"] = 24
	default:
		input["resolution"] = orDefault(req.Resolution, "1080p")
		input["aspect_ratio"] = orDefault(req.AspectRatio, "16:9")
		input["generate_audio"] = req.GenerateAudio
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}
	return input, nil
}

func (c *Client) imageInput(model string, req providers.Request) (map[string]any, error) {
	input := map[string]any{"prompt": req.Prompt}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	refs := make([]string, 0, len(req.ReferenceImages))
	for _, path := range req.ReferenceImages {
		url, err := c.dataURL(path)
		if err != nil {
			return nil, err
		}
		refs = append(refs, url)
	}
	if strings.Contains(strings.ToLower(model), "seedream") {
		if req.NumOutputs > 0 {
			input["max_images"] = req.NumOutputs
		}
		if len(refs) > 0 {
			input["image_input"] = refs
		}
		return input, nil
	}
	if req.NumOutputs > 0 {
		input["num_outputs"] = req.NumOutputs
	}
	switch len(refs) {
	case 0:
	case 1:
		input["image"] = refs[0]
	default:
		input["reference_images"] = refs
	}
	return input, nil
}

func (c *Client) dataURL(path string) (string, error) {
	url, err := c.images.DataURL(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, name, "encode image", path, err)
	}
	return url, nil
}

func (c *Client) get(ctx context.Context, h providers.Handle) (prediction, error) {
	pollURL := h.PollURL
	if pollURL == "" {
		pollURL = c.baseURL + "/predictions/" + h.ID
	}
	var current prediction
	err := providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "poll",
		Method:   http.MethodGet,
		URL:      pollURL,
		Header:   providers.BearerHeader(c.token),
	}, &current)
	return current, err
}

// Poll maps starting/processing to pending and failed/canceled to failed.
func (c *Client) Poll(ctx context.Context, h providers.Handle) (providers.Status, error) {
	current, err := c.get(ctx, h)
	if err != nil {
		return providers.Status{}, err
	}
	switch strings.ToLower(current.Status) {
	case "succeeded":
		return providers.Status{State: providers.StateSucceeded, Progress: 100}, nil
	case "failed", "canceled":
		reason := fmt.Sprintf("prediction %s %s", h.ID, current.Status)
		if detail := errorText(current.Error); detail != "" {
			reason += ": " + detail
		}
		return providers.Status{State: providers.StateFailed, Progress: -1, Reason: reason}, nil
	default:
		return providers.Status{State: providers.StatePending, Progress: logProgress(current.Logs)}, nil
	}
}

// Fetch returns the prediction outputs in order.
func (c *Client) Fetch(ctx context.Context, h providers.Handle) ([]providers.Output, error) {
	current, err := c.get(ctx, h)
	if err != nil {
		return nil, err
	}
	urls := parseOutput(current.Output)
	if len(urls) == 0 {
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "prediction output missing", nil)
	}
	outputs := make([]providers.Output, 0, len(urls))
	for _, u := range urls {
		outputs = append(outputs, providers.Output{URL: u})
	}
	return outputs, nil
}

// parseOutput accepts a string, a list of strings or a list of {url} objects.
func parseOutput(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	urls := make([]string, 0, len(list))
	for _, item := range list {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			urls = append(urls, s)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.URL != "" {
			urls = append(urls, obj.URL)
		}
	}
	return urls
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		encoded, _ := json.Marshal(e)
		return string(encoded)
	}
}

// logProgress extracts the last "NN%" marker Replicate models print to
// their logs, or -1.
func logProgress(logs string) int {
	progress := -1
	for _, field := range strings.Fields(logs) {
		idx := strings.IndexByte(field, '%')
		if idx <= 0 {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(field[:idx], "%d", &n); err == nil && n >= 0 && n <= 100 {
			progress = n
		}
	}
	return progress
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
