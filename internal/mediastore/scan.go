package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
)

// Prober reads clip metadata during a scan. Nil skips probing.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Info, error)
}

// ScanSummary reports what a scan touched.
type ScanSummary struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

var scanDirs = map[string]Kind{
	"video":  KindVideo,
	"audio":  KindAudio,
	"images": KindImage,
}

var extensions = map[Kind]map[string]string{
	KindVideo: {".mp4": "video/mp4", ".mov": "video/quicktime", ".webm": "video/webm", ".mkv": "video/x-matroska"},
	KindAudio: {".mp3": "audio/mpeg", ".wav": "audio/wav", ".m4a": "audio/mp4", ".flac": "audio/flac"},
	KindImage: {".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".webp": "image/webp"},
}

// Scan indexes files under root/{video,audio,images} that have no record
// yet. Probe failures are logged and counted; the file is still indexed
// without dimensions.
func (s *Store) Scan(ctx context.Context, root, projectID string, prober Prober, logger *slog.Logger) (ScanSummary, error) {
	logger = logging.NewComponentLogger(logger, "mediastore")
	var summary ScanSummary

	for dir, kind := range scanDirs {
		base := filepath.Join(root, dir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			mime, ok := extensions[kind][strings.ToLower(filepath.Ext(path))]
			if !ok {
				return nil
			}
			known, err := s.HasPath(ctx, path)
			if err != nil {
				return err
			}
			if known {
				summary.Skipped++
				return nil
			}

			rec := Record{ProjectID: projectID, Kind: kind, Path: path, MimeType: mime}
			if info, statErr := os.Stat(path); statErr == nil {
				rec.CreatedAt = info.ModTime().UTC()
			}
			if prober != nil && kind != KindImage {
				probed, probeErr := prober.Probe(ctx, path)
				if probeErr != nil {
					summary.Failed++
					logging.WarnWithContext(logger, "media probe failed during scan", "media_scan_probe_failed",
						logging.String("path", path),
						logging.Error(probeErr),
						logging.String(logging.FieldImpact, "record stored without duration"),
					)
				} else {
					rec.Duration = probed.Duration
					rec.Width = probed.Width
					rec.Height = probed.Height
				}
			}
			if _, err := s.Insert(ctx, rec); err != nil {
				return err
			}
			summary.Indexed++
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipDir) {
			return summary, fmt.Errorf("scan %s: %w", base, err)
		}
	}
	logger.Info("media scan complete",
		logging.Int("indexed", summary.Indexed),
		logging.Int("skipped", summary.Skipped),
		logging.String(logging.FieldEventType, "media_scan_complete"),
	)
	return summary, nil
}
