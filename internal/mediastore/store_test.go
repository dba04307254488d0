package mediastore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelsmith/internal/logging"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/services"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "media.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec, err := store.Insert(ctx, Record{
		ProjectID: "p1",
		Kind:      KindVideo,
		Path:      "/media/video/clip.mp4",
		JobID:     "job-1",
		Duration:  8.04,
		Width:     1920,
		Height:    1080,
		Metadata:  json.RawMessage(`{"provider":"replicate"}`),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", rec)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Path != rec.Path || got.JobID != "job-1" || got.Width != 1920 || string(got.Metadata) != `{"provider":"replicate"}` {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInsertValidates(t *testing.T) {
	store := openStore(t)
	if _, err := store.Insert(context.Background(), Record{Kind: KindAudio}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := store.Insert(context.Background(), Record{Path: "/x.mp3"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDuplicatePathRejected(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Insert(ctx, Record{Kind: KindImage, Path: "/a.png"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Insert(ctx, Record{Kind: KindImage, Path: "/a.png"}); err == nil {
		t.Fatal("expected unique path violation")
	}
}

func TestListFiltersByProjectNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []string{"p1", "p2", "p1"} {
		_, err := store.Insert(ctx, Record{
			ProjectID: p,
			Kind:      KindVideo,
			Path:      filepath.Join("/media", p, string(rune('a'+i))+".mp4"),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	recs, err := store.List(ctx, "p1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || !recs[0].CreatedAt.After(recs[1].CreatedAt) {
		t.Fatalf("unexpected list %+v", recs)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := store.Insert(context.Background(), Record{Kind: KindAudio, Path: "/v.mp3"})
	_ = store.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if _, err := again.Get(context.Background(), rec.ID); err != nil {
		t.Fatalf("record lost after reopen: %v", err)
	}
}

type stubProber struct {
	info ffprobe.Info
	err  error
}

func (s stubProber) Probe(context.Context, string) (ffprobe.Info, error) {
	return s.info, s.err
}

func TestScanIndexesKnownDirectoriesOnce(t *testing.T) {
	store := openStore(t)
	root := t.TempDir()
	for _, rel := range []string{"video/a.mp4", "video/notes.txt", "audio/v.wav", "images/still.PNG", "images/.hidden.png", "other/x.mp4"} {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	prober := stubProber{info: ffprobe.Info{Duration: 4, Width: 640, Height: 360}}

	summary, err := store.Scan(context.Background(), root, "proj", prober, logging.NewNop())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if summary.Indexed != 3 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	recs, _ := store.List(context.Background(), "proj")
	for _, rec := range recs {
		if rec.Kind == KindVideo && (rec.Duration != 4 || rec.Width != 640) {
			t.Fatalf("video not probed: %+v", rec)
		}
		if rec.Kind == KindImage && rec.MimeType != "image/png" {
			t.Fatalf("unexpected image mime %q", rec.MimeType)
		}
	}

	again, err := store.Scan(context.Background(), root, "proj", prober, logging.NewNop())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if again.Indexed != 0 || again.Skipped != 3 {
		t.Fatalf("rescan should skip known files, got %+v", again)
	}
}

func TestScanCountsProbeFailures(t *testing.T) {
	store := openStore(t)
	root := t.TempDir()
	path := filepath.Join(root, "video", "broken.mp4")
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, []byte("x"), 0o644)

	summary, err := store.Scan(context.Background(), root, "", stubProber{err: errors.New("moov atom not found")}, logging.NewNop())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if summary.Indexed != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
