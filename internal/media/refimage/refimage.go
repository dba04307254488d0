// Package refimage prepares reference and keyframe images for inline
// submission to generation providers.
package refimage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxWidth = 1280
	DefaultMaxBytes = 250 * 1024
)

var qualityLadder = []int{85, 75, 65, 55, 45}

// Encoder downscales images to a bounded width and JPEG size.
type Encoder struct {
	MaxWidth int
	MaxBytes int
}

// NewEncoder returns an encoder, substituting defaults for non-positive limits.
func NewEncoder(maxWidth, maxBytes int) Encoder {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return Encoder{MaxWidth: maxWidth, MaxBytes: maxBytes}
}

// Compress returns the image as JPEG, resized to MaxWidth and re-encoded at
// decreasing quality until it fits MaxBytes. If no quality fits, the
// smallest attempt is returned. Undecodable files are returned unchanged with
// a MIME type guessed from the extension.
func (e Encoder) Compress(path string) ([]byte, string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, "", fmt.Errorf("read image: %w", readErr)
		}
		return raw, mimeFor(path), nil
	}
	if e.MaxWidth > 0 && img.Bounds().Dx() > e.MaxWidth {
		img = imaging.Resize(img, e.MaxWidth, 0, imaging.Lanczos)
	}

	var data []byte
	for _, quality := range qualityLadder {
		buf := &bytes.Buffer{}
		if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, "", fmt.Errorf("encode image: %w", err)
		}
		data = buf.Bytes()
		if e.MaxBytes <= 0 || len(data) <= e.MaxBytes {
			break
		}
	}
	return data, "image/jpeg", nil
}

// DataURL returns the compressed image as a data: URL.
func (e Encoder) DataURL(path string) (string, error) {
	data, mime, err := e.Compress(path)
	if err != nil {
		return "", err
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Base64 returns the compressed image as standard base64 plus its MIME type.
func (e Encoder) Base64(path string) (string, string, error) {
	data, mime, err := e.Compress(path)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(data), mime, nil
}

// RawDataURL encodes a file without re-encoding it.
func RawDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return "data:" + mimeFor(path) + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "image/png"
	}
}
