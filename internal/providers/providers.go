package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"reelsmith/internal/services"
)

// Mode selects what the provider is asked to produce.
type Mode string

const (
	ModeVideo        Mode = "video"
	ModeImage        Mode = "image"
	ModeLipSync      Mode = "lip-sync"
	ModeLipSyncMulti Mode = "lip-sync-multi"
	ModeSpeech       Mode = "speech"
)

// State is the provider-reported lifecycle of a submitted request.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Request carries every input a backend may need. Adapters ignore what they
// do not support. Paths are local files; adapters encode or upload them.
type Request struct {
	Mode            Mode
	Model           string
	Prompt          string
	StartFrame      string
	EndFrame        string
	ReferenceImages []string
	Image           string
	Video           string
	Audio           []string
	Text            string
	VoiceID         string
	Resolution      string
	AspectRatio     string
	DurationSeconds int
	GenerateAudio   bool
	Seed            *int
	NumOutputs      int
	// WorkDir receives outputs that arrive inline in a provider response.
	WorkDir string
}

// Handle identifies a submitted request. Synchronous backends return their
// outputs directly in the handle. WorkDir carries the request's scratch
// directory to Fetch so locally materialised outputs land there.
type Handle struct {
	Provider string   `json:"provider"`
	ID       string   `json:"id"`
	PollURL  string   `json:"poll_url,omitempty"`
	Outputs  []Output `json:"outputs,omitempty"`
	WorkDir  string   `json:"work_dir,omitempty"`
}

// Status is one poll result. Progress is -1 when the backend does not
// report a percentage.
type Status struct {
	State    State
	Progress int
	Reason   string
}

// Output is one result reference: a remote URL or a file the adapter has
// already written locally.
type Output struct {
	URL       string      `json:"url,omitempty"`
	LocalPath string      `json:"local_path,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
	Header    http.Header `json:"-"`
}

// Client is the contract every generation backend implements.
type Client interface {
	Name() string
	Submit(ctx context.Context, req Request) (Handle, error)
	Poll(ctx context.Context, h Handle) (Status, error)
	Fetch(ctx context.Context, h Handle) ([]Output, error)
}

// Primary picks the output single-result flows use: the last one.
func Primary(outputs []Output) (Output, bool) {
	if len(outputs) == 0 {
		return Output{}, false
	}
	return outputs[len(outputs)-1], true
}

// Set is a name-indexed collection of clients with their overall timeouts.
type Set struct {
	mu       sync.RWMutex
	clients  map[string]Client
	timeouts map[string]time.Duration
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{clients: map[string]Client{}, timeouts: map[string]time.Duration{}}
}

// Add registers client under its Name with an overall await timeout.
func (s *Set) Add(client Client, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(client.Name())
	s.clients[name] = client
	s.timeouts[name] = timeout
}

// Get returns the named client.
func (s *Set) Get(name string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "providers", "lookup", fmt.Sprintf("unknown provider %q", name), nil)
	}
	return client, nil
}

// Policy returns the await policy for name at the given poll interval.
func (s *Set) Policy(name string, interval time.Duration) Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Policy{Interval: interval, Timeout: s.timeouts[strings.ToLower(name)]}
}

// Names lists registered providers in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
