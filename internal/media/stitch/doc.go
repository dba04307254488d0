// Package stitch joins sequential clips into one continuous video.
//
// Clip B of a "continue this shot" pair starts on a frame generated to match
// clip A's last frame. Joining them naively shows that frame twice, so the
// stitcher normalizes both clips to a common geometry and frame rate, drops
// B's first video frame, trims B's audio by the same one-frame duration and
// concatenates the decoded streams in a single ffmpeg filter graph. The
// output is re-encoded with a fixed H.264/AAC profile.
package stitch
