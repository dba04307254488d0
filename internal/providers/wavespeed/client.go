// Package wavespeed implements the WaveSpeed InfiniteTalk lip-sync backend.
package wavespeed

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
	name           = "wavespeed"
	defaultBaseURL = "https://api.wavespeed.ai/api/v3"
	singlePath     = "/wavespeed-ai/infinitetalk"
	multiPath      = "/wavespeed-ai/infinitetalk/multi"
)

var (
	doneStates   = map[string]bool{"completed": true, "success": true, "succeeded": true, "finished": true}
	failedStates = map[string]bool{"failed": true, "error": true}
)

// Client submits InfiniteTalk requests and polls their result endpoint.
type Client struct {
	apiKey     string
	baseURL    string
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

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// New builds a client; Submit reports a missing key.
func New(cfg config.WaveSpeed, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    base,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements providers.Client.
func (c *Client) Name() string { return name }

// Submit sends a single-speaker (image or video source) or two-speaker
// request. Media is inlined as data URLs.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.Handle, error) {
	if c.apiKey == "" {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "submit", "api key not configured", nil)
	}
	payload, path, err := buildPayload(req)
	if err != nil {
		return providers.Handle{}, err
	}

	var raw map[string]any
	err = providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "submit",
		Method:   http.MethodPost,
		URL:      c.baseURL + path,
		Header:   providers.BearerHeader(c.apiKey),
		Body:     payload,
	}, &raw)
	if err != nil {
		return providers.Handle{}, err
	}

	data, _ := raw["data"].(map[string]any)
	id := firstString(raw["requestId"], raw["id"], lookup(data, "id"))
	if id == "" {
		return providers.Handle{}, services.Wrap(services.ErrProviderRejected, name, "submit", "response missing request id", nil)
	}
	pollURL := firstString(raw["resultUrl"], lookup(lookupMap(data, "urls"), "get"), lookup(lookupMap(raw, "urls"), "get"))
	if pollURL == "" {
		pollURL = fmt.Sprintf("%s/predictions/%s/result", c.baseURL, id)
	}
	return providers.Handle{Provider: name, ID: id, PollURL: pollURL}, nil
}

func buildPayload(req providers.Request) (map[string]any, string, error) {
	payload := map[string]any{
		"prompt":     req.Prompt,
		"resolution": orDefault(req.Resolution, "720p"),
		"seed":       -1,
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}

	encode := func(key, path string) error {
		if path == "" {
			return nil
		}
		url, err := refimage.RawDataURL(path)
		if err != nil {
			return services.Wrap(services.ErrValidation, name, "encode", path, err)
		}
		payload[key] = url
		return nil
	}

	if req.Mode == providers.ModeLipSyncMulti {
		if req.Image == "" || len(req.Audio) != 2 {
			return nil, "", services.Wrap(services.ErrValidation, name, "submit", "multi-character lip-sync needs one image and two audio tracks", nil)
		}
		if err := encode("image", req.Image); err != nil {
			return nil, "", err
		}
		if err := encode("left_audio", req.Audio[0]); err != nil {
			return nil, "", err
		}
		if err := encode("right_audio", req.Audio[1]); err != nil {
			return nil, "", err
		}
		payload["order"] = "meanwhile"
		return payload, multiPath, nil
	}

	if len(req.Audio) == 0 || (req.Image == "" && req.Video == "") {
		return nil, "", services.Wrap(services.ErrValidation, name, "submit", "lip-sync needs audio and an image or video", nil)
	}
	if err := encode("audio", req.Audio[0]); err != nil {
		return nil, "", err
	}
	if err := encode("image", req.Image); err != nil {
		return nil, "", err
	}
	if err := encode("video", req.Video); err != nil {
		return nil, "", err
	}
	return payload, singlePath, nil
}

type result struct {
	state    string
	progress int
	videoURL string
	raw      map[string]any
}

func (c *Client) fetchResult(ctx context.Context, h providers.Handle) (result, error) {
	pollURL := h.PollURL
	if pollURL == "" {
		pollURL = fmt.Sprintf("%s/predictions/%s/result", c.baseURL, h.ID)
	}
	var raw map[string]any
	err := providers.DoJSON(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "poll",
		Method:   http.MethodGet,
		URL:      pollURL,
		Header:   providers.BearerHeader(c.apiKey),
	}, &raw)
	if err != nil {
		return result{}, err
	}
	return parseResult(raw), nil
}

func parseResult(raw map[string]any) result {
	data, _ := raw["data"].(map[string]any)
	r := result{raw: raw, progress: -1}
	r.state = strings.ToLower(firstString(raw["status"], raw["state"], lookup(data, "status"), lookup(data, "state")))
	if p, ok := firstNumber(raw["progress"], lookup(data, "progress")); ok {
		r.progress = int(p)
	}

	res, _ := raw["result"].(map[string]any)
	if res == nil {
		res = raw
	}
	r.videoURL = firstString(res["videoUrl"], res["video_url"], res["video"], res["url"])
	if r.videoURL == "" {
		if outputs, ok := lookup(data, "outputs").([]any); ok && len(outputs) > 0 {
			r.videoURL = firstString(outputs[len(outputs)-1])
		}
	}
	return r
}

// Poll reads the result endpoint and classifies its status.
func (c *Client) Poll(ctx context.Context, h providers.Handle) (providers.Status, error) {
	r, err := c.fetchResult(ctx, h)
	if err != nil {
		return providers.Status{}, err
	}
	switch {
	case doneStates[r.state]:
		return providers.Status{State: providers.StateSucceeded, Progress: 100}, nil
	case failedStates[r.state]:
		reason := firstString(r.raw["error"], lookup(lookupMap(r.raw, "data"), "error"))
		if reason == "" {
			reason = "request " + h.ID + " " + r.state
		}
		return providers.Status{State: providers.StateFailed, Progress: -1, Reason: reason}, nil
	default:
		return providers.Status{State: providers.StatePending, Progress: r.progress}, nil
	}
}

// Fetch returns the generated video URL. Downloads reuse the API key.
func (c *Client) Fetch(ctx context.Context, h providers.Handle) ([]providers.Output, error) {
	r, err := c.fetchResult(ctx, h)
	if err != nil {
		return nil, err
	}
	if r.videoURL == "" {
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "completed without a video url", nil)
	}
	return []providers.Output{{URL: r.videoURL, MimeType: "video/mp4", Header: providers.BearerHeader(c.apiKey)}}, nil
}

func lookupMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstNumber(values ...any) (float64, bool) {
	for _, v := range values {
		switch n := v.(type) {
		case float64:
			return n, true
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
