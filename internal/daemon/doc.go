// Package daemon coordinates the long-running reelsmith process.
//
// It wires the job registry, the media metadata store, the worker runner and
// the HTTP status surface into a single lifecycle, with a flock-based lock in
// the state directory preventing two instances from sharing the persisted
// job table. Start reconciles jobs left running by a previous process before
// the API accepts new work.
//
// Keep orchestration here: pipelines live in internal/worker and provider
// traffic in internal/providers.
package daemon
