// Package elevenlabs implements text-to-speech and voice conversion against
// the ElevenLabs API. The API is synchronous; Submit performs the request
// and returns a handle that already carries the audio file.
package elevenlabs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/config"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

const (
	name             = "elevenlabs"
	defaultBaseURL   = "https://api.elevenlabs.io/v1"
	DefaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	defaultSTSModel  = "eleven_multilingual_sts_v2"
	audioChunkBuffer = 32 * 1024
)

// Client calls the ElevenLabs speech endpoints.
type Client struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
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
func New(cfg config.ElevenLabs, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	voice := strings.TrimSpace(cfg.VoiceID)
	if voice == "" {
		voice = DefaultVoiceID
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    base,
		voiceID:    voice,
		modelID:    strings.TrimSpace(cfg.ModelID),
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements providers.Client.
func (c *Client) Name() string { return name }

// Submit synthesizes req.Text, or converts req.Audio[0] to the target voice
// when no text is given, and writes the audio into req.WorkDir.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.Handle, error) {
	if c.apiKey == "" {
		return providers.Handle{}, services.Wrap(services.ErrConfiguration, name, "submit", "api key not configured", nil)
	}
	voice := strings.TrimSpace(req.VoiceID)
	if voice == "" {
		voice = c.voiceID
	}

	var (
		resp *http.Response
		err  error
	)
	switch {
	case strings.TrimSpace(req.Text) != "":
		resp, err = c.textToSpeech(ctx, voice, req)
	case len(req.Audio) > 0 && req.Audio[0] != "":
		resp, err = c.speechToSpeech(ctx, voice, req.Audio[0])
	default:
		return providers.Handle{}, services.Wrap(services.ErrValidation, name, "submit", "text or source audio is required", nil)
	}
	if err != nil {
		return providers.Handle{}, err
	}
	defer resp.Body.Close()

	ext, mime := ".mp3", "audio/mpeg"
	if ctype := strings.ToLower(resp.Header.Get("Content-Type")); strings.Contains(ctype, "wav") {
		ext, mime = ".wav", "audio/wav"
	}
	dir := req.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return providers.Handle{}, services.Wrap(services.ErrMediaProcessing, name, "store audio", dir, err)
	}
	id := uuid.NewString()
	path := filepath.Join(dir, "elevenlabs-"+id+ext)
	file, err := os.Create(path)
	if err != nil {
		return providers.Handle{}, services.Wrap(services.ErrMediaProcessing, name, "store audio", path, err)
	}
	_, copyErr := io.CopyBuffer(file, resp.Body, make([]byte, audioChunkBuffer))
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return providers.Handle{}, services.Wrap(services.ErrTransient, name, "store audio", path, err)
	}

	return providers.Handle{
		Provider: name,
		ID:       id,
		Outputs:  []providers.Output{{LocalPath: path, MimeType: mime}},
	}, nil
}

func (c *Client) textToSpeech(ctx context.Context, voice string, req providers.Request) (*http.Response, error) {
	body := map[string]any{"text": req.Text}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.modelID
	}
	if model != "" {
		body["model_id"] = model
	}
	header := http.Header{}
	header.Set("xi-api-key", c.apiKey)
	header.Set("Accept", "audio/mpeg")
	return providers.Do(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "text-to-speech",
		Method:   http.MethodPost,
		URL:      c.baseURL + "/text-to-speech/" + voice,
		Header:   header,
		Body:     body,
	})
}

func (c *Client) speechToSpeech(ctx context.Context, voice, audioPath string) (*http.Response, error) {
	source, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "speech-to-speech", "source audio not readable", err)
	}
	defer source.Close()

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	_ = form.WriteField("model_id", defaultSTSModel)
	_ = form.WriteField("output_format", "mp3_44100_128")
	part, err := form.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "speech-to-speech", "build form", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "speech-to-speech", "read source audio", err)
	}
	if err := form.Close(); err != nil {
		return nil, services.Wrap(services.ErrValidation, name, "speech-to-speech", "build form", err)
	}

	header := http.Header{}
	header.Set("xi-api-key", c.apiKey)
	header.Set("Content-Type", form.FormDataContentType())
	return providers.Do(ctx, c.httpClient, providers.Call{
		Provider: name,
		Op:       "speech-to-speech",
		Method:   http.MethodPost,
		URL:      c.baseURL + "/speech-to-speech/" + voice,
		Header:   header,
		Body:     buf,
	})
}

// Poll always reports success: Submit only returns once audio exists.
func (c *Client) Poll(context.Context, providers.Handle) (providers.Status, error) {
	return providers.Status{State: providers.StateSucceeded, Progress: 100}, nil
}

// Fetch returns the outputs recorded on the handle.
func (c *Client) Fetch(_ context.Context, h providers.Handle) ([]providers.Output, error) {
	if len(h.Outputs) == 0 {
		return nil, services.Wrap(services.ErrProviderRejected, name, "fetch", "no audio recorded for request", nil)
	}
	return h.Outputs, nil
}
