package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUploadPutsUnderPrefix(t *testing.T) {
	local := filepath.Join(t.TempDir(), "last.png")
	if err := os.WriteFile(local, []byte("frame"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := &fakeS3{}
	bucket := NewWithClient(client, "reels", "/frames/", "gs")

	uri, err := bucket.Upload(context.Background(), "../job-1/last.png", local, "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if uri != "gs://reels/frames/job-1/last.png" {
		t.Fatalf("unexpected uri %q", uri)
	}
	if aws.ToString(client.input.Key) != "frames/job-1/last.png" || aws.ToString(client.input.ContentType) != "image/png" {
		t.Fatalf("unexpected input %+v", client.input)
	}
	if string(client.body) != "frame" {
		t.Fatalf("unexpected body %q", client.body)
	}
}

func TestUploadFailureIsTransient(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.png")
	_ = os.WriteFile(local, []byte("x"), 0o644)
	bucket := NewWithClient(&fakeS3{err: errors.New("503 slow down")}, "reels", "", "")
	if _, err := bucket.Upload(context.Background(), "a.png", local, ""); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewDisabledReturnsNil(t *testing.T) {
	bucket, err := New(context.Background(), config.ObjectStore{})
	if err != nil || bucket != nil {
		t.Fatalf("expected nil bucket, got %v %v", bucket, err)
	}
	if _, err := New(context.Background(), config.ObjectStore{Enabled: true}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
