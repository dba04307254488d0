package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reelsmith/internal/services"
)

const maxErrorBody = 4096

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("http %d from %s: %s", e.StatusCode, e.URL, body)
}

// Call describes one JSON request made by an adapter.
type Call struct {
	Provider string
	Op       string
	Method   string
	URL      string
	Header   http.Header
	Body     any
}

// DoJSON sends call, decoding a 2xx JSON response into out when out is
// non-nil. Transport failures and non-2xx responses are wrapped with
// services.ErrTransient; a non-2xx response carries an *HTTPError.
func DoJSON(ctx context.Context, client *http.Client, call Call, out any) error {
	resp, err := Do(ctx, client, call)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, call.Provider, call.Op, "decode response", err)
	}
	return nil
}

// Do sends call and returns the raw 2xx response. The caller closes the body.
func Do(ctx context.Context, client *http.Client, call Call) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var body io.Reader
	if call.Body != nil {
		switch v := call.Body.(type) {
		case io.Reader:
			body = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, call.Provider, call.Op, "encode request", err)
			}
			body = bytes.NewReader(encoded)
		}
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, call.Provider, call.Op, "build request", err)
	}
	for key, values := range call.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if call.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "reelsmith")
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, call.Provider, call.Op, "request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(snippet), URL: call.URL}
		return nil, services.Wrap(services.ErrTransient, call.Provider, call.Op, "", httpErr)
	}
	return resp, nil
}

// BearerHeader builds an Authorization header.
func BearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
