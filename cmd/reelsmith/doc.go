// Command reelsmith runs the generation job daemon and offers local media
// helpers.
//
// `reelsmith serve` starts the daemon. The job commands (jobs list, show,
// submit) and status talk to it over the HTTP API. The media commands
// (probe, frames, stitch, media list, media scan) run in-process against the
// configured ffmpeg tools and metadata store, so they work without a daemon.
package main
