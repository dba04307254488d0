package worker

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"reelsmith/internal/providers"
)

// outputName is the base file name for a job's media: the sanitized
// output_name when given, else kind plus a short job id.
func outputName(req Request, id string) string {
	name := strings.TrimSpace(req.OutputName)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = sanitize(filepath.Base(name))
	if name == "" || name == "." {
		return string(req.Kind) + "_" + shortID(id)
	}
	return name
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

var mimeExtensions = map[string]string{
	"video/mp4":  ".mp4",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
}

// extensionFor picks a file extension from the output's local path, URL path
// or mime type, in that order.
func extensionFor(out providers.Output, fallback string) string {
	if ext := filepath.Ext(out.LocalPath); ext != "" {
		return strings.ToLower(ext)
	}
	if out.URL != "" {
		if u, err := url.Parse(out.URL); err == nil {
			if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
				return strings.ToLower(ext)
			}
		}
	}
	if ext, ok := mimeExtensions[strings.ToLower(out.MimeType)]; ok {
		return ext
	}
	return fallback
}
