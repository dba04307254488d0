// Package api defines the HTTP status surface and its wire types.
//
// The router exposes the job registry (list, show, submit), the media
// helpers (probe, frame extraction, record listing), daemon status and the
// Prometheus scrape endpoint. Handlers depend on small interfaces so tests
// can drive them with httptest and stubs.
//
// Client is the matching HTTP client used by the CLI. A daemon that is not
// listening surfaces as ErrAPIUnavailable so commands can print a hint
// instead of a dial error.
package api
