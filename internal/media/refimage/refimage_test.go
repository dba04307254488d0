package refimage

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func writeNoiseImage(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save image: %v", err)
	}
	return path
}

func TestCompressDownscalesWideImages(t *testing.T) {
	path := writeNoiseImage(t, 2000, 500)
	data, mime, err := NewEncoder(1280, 0).Compress(path)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if mime != "image/jpeg" {
		t.Fatalf("expected jpeg, got %s", mime)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if img.Bounds().Dx() != 1280 || img.Bounds().Dy() != 320 {
		t.Fatalf("expected 1280x320, got %v", img.Bounds())
	}
}

func TestCompressWalksQualityLadder(t *testing.T) {
	path := writeNoiseImage(t, 640, 480)
	large, _, err := Encoder{MaxWidth: 1280, MaxBytes: 1 << 30}.Compress(path)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	small, _, err := Encoder{MaxWidth: 1280, MaxBytes: 1}.Compress(path)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(small) >= len(large) {
		t.Fatalf("expected lowest quality attempt to be smaller: %d >= %d", len(small), len(large))
	}
}

func TestDataURLFallsBackToRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-image.png")
	if err := os.WriteFile(path, []byte("plain"), 0o644); err != nil {
		t.Fatal(err)
	}
	url, err := NewEncoder(0, 0).DataURL(path)
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain"))
	if url != want {
		t.Fatalf("DataURL = %q, want %q", url, want)
	}
}

func TestRawDataURLMime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line.mp3")
	_ = os.WriteFile(path, []byte{1, 2, 3}, 0o644)
	url, err := RawDataURL(path)
	if err != nil {
		t.Fatalf("RawDataURL: %v", err)
	}
	if !strings.HasPrefix(url, "data:audio/mpeg;base64,") {
		t.Fatalf("unexpected url %q", url)
	}
}
