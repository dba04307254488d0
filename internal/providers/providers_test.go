package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reelsmith/internal/services"
)

type scriptedClient struct {
	mu       sync.Mutex
	statuses []Status
	outputs  []Output
	polls    int
	pollErr  error
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Submit(context.Context, Request) (Handle, error) {
	return Handle{Provider: "scripted", ID: "req-1"}, nil
}

func (c *scriptedClient) Poll(context.Context, Handle) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.pollErr != nil {
		return Status{}, c.pollErr
	}
	if len(c.statuses) == 0 {
		return Status{State: StatePending, Progress: -1}, nil
	}
	next := c.statuses[0]
	if len(c.statuses) > 1 {
		c.statuses = c.statuses[1:]
	}
	return next, nil
}

func (c *scriptedClient) Fetch(context.Context, Handle) ([]Output, error) {
	return c.outputs, nil
}

func TestAwaitReportsProgressAndFetches(t *testing.T) {
	client := &scriptedClient{
		statuses: []Status{
			{State: StatePending, Progress: 10},
			{State: StatePending, Progress: -1},
			{State: StateSucceeded, Progress: 100},
		},
		outputs: []Output{{URL: "https://cdn/a.mp4"}, {URL: "https://cdn/b.mp4"}},
	}
	var seen []int
	outputs, err := Await(context.Background(), client, Handle{ID: "req-1"}, Policy{Interval: time.Millisecond, Timeout: time.Second}, func(p int) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if client.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", client.polls)
	}
	if len(seen) != 2 || seen[0] != 10 || seen[1] != 100 {
		t.Fatalf("unexpected progress callbacks %v", seen)
	}
	primary, ok := Primary(outputs)
	if !ok || primary.URL != "https://cdn/b.mp4" {
		t.Fatalf("expected last output as primary, got %+v", primary)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	client := &scriptedClient{}
	_, err := Await(context.Background(), client, Handle{ID: "req-1"}, Policy{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out after") {
		t.Fatalf("expected timed out reason, got %v", err)
	}
	if services.KindOf(err) != services.KindTransient {
		t.Fatalf("expected timeout to classify as transient, got %s", services.KindOf(err))
	}
}

func TestAwaitFailedIsRejected(t *testing.T) {
	client := &scriptedClient{statuses: []Status{{State: StateFailed, Reason: "NSFW content detected"}}}
	_, err := Await(context.Background(), client, Handle{ID: "req-1"}, Policy{Interval: time.Millisecond, Timeout: time.Second}, nil)
	if !errors.Is(err, services.ErrProviderRejected) || !strings.Contains(err.Error(), "NSFW") {
		t.Fatalf("expected provider rejection with reason, got %v", err)
	}
}

func TestAwaitDoesNotRetryPollErrors(t *testing.T) {
	client := &scriptedClient{pollErr: services.Wrap(services.ErrTransient, "scripted", "poll", "", &HTTPError{StatusCode: 502})}
	_, err := Await(context.Background(), client, Handle{ID: "req-1"}, Policy{Interval: time.Millisecond, Timeout: time.Second}, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if client.polls != 1 {
		t.Fatalf("expected a single poll, got %d", client.polls)
	}
}

func TestAwaitShortCircuitsSynchronousHandles(t *testing.T) {
	client := &scriptedClient{}
	outputs, err := Await(context.Background(), client, Handle{Outputs: []Output{{LocalPath: "/tmp/x.mp3"}}}, Policy{}, nil)
	if err != nil || len(outputs) != 1 || client.polls != 0 {
		t.Fatalf("expected outputs without polling, got %v %v polls=%d", outputs, err, client.polls)
	}
}

func TestDoJSONWrapsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":"invalid input"}`)
	}))
	defer server.Close()

	err := DoJSON(context.Background(), server.Client(), Call{Provider: "test", Op: "submit", Method: http.MethodPost, URL: server.URL, Body: map[string]string{"a": "b"}}, &struct{}{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(httpErr.Body, "invalid input") {
		t.Fatalf("unexpected http error %+v", httpErr)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestDownloadStreamsToPartThenRenames(t *testing.T) {
	payload := strings.Repeat("v", 100*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clips", "out.mp4")
	written, err := Download(context.Background(), server.Client(), Output{URL: server.URL, Header: BearerHeader("secret")}, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if written != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), written)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected partial file removed, got %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != payload {
		t.Fatal("downloaded content mismatch")
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	if _, err := Download(context.Background(), server.Client(), Output{URL: server.URL}, dest); err == nil {
		t.Fatal("expected error")
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent", p)
		}
	}
}

func TestDownloadMovesLocalOutputs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inline.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "media", "line.mp3")
	written, err := Download(context.Background(), nil, Output{LocalPath: src}, dest)
	if err != nil || written != 5 {
		t.Fatalf("Download local: %d %v", written, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected source to be moved")
	}
}

func TestSetLookup(t *testing.T) {
	set := NewSet()
	set.Add(&scriptedClient{}, 2*time.Minute)
	if _, err := set.Get("Scripted"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := set.Get("missing"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if p := set.Policy("scripted", time.Second); p.Timeout != 2*time.Minute || p.Interval != time.Second {
		t.Fatalf("unexpected policy %+v", p)
	}
	if names := set.Names(); len(names) != 1 || names[0] != "scripted" {
		t.Fatalf("unexpected names %v", names)
	}
}
