// Package frames extracts still images from generated clips.
//
// Last-frame extraction is the tricky part: reported durations are often
// missing or slightly past the final decodable frame, so the extractor picks
// a seek strategy per duration bucket and falls back to end-of-stream and
// then first-frame grabs when the duration cannot be probed. A failed
// extraction is reported as a ConfidenceFailed boundary so callers can carry
// on without that frame.
package frames
