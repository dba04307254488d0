// Package ffprobe provides a typed wrapper around ffprobe output and the media
// probe used before frame extraction and stitching.
//
// Key types:
//   - Result: parsed ffprobe JSON containing streams and format metadata
//   - Info: the summary callers need (duration, audio/video presence,
//     resolution, frame rate)
//   - Prober: runs ffprobe with a per-call timeout
//
// Duration is never trusted from a single field: Prober.Duration asks for the
// container duration and then the first video stream duration in separate
// calls, accepting the first strictly positive value.
package ffprobe
