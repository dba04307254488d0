// Package objectstore publishes local files to an S3-compatible bucket so
// providers that only accept remote URIs (Vertex gcsUri, for instance) can
// read reference frames. Google Cloud Storage is reached through its
// S3-interoperability endpoint with uri_scheme "gs".
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Uploader publishes a local file and returns its remote URI.
type Uploader interface {
	Upload(ctx context.Context, key, localPath, contentType string) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Bucket uploads to one bucket under an optional key prefix.
type Bucket struct {
	client putObjectAPI
	bucket string
	prefix string
	scheme string
}

// New returns nil when the object store is disabled.
func New(ctx context.Context, cfg config.ObjectStore) (*Bucket, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "bucket is required", nil)
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, cfg.URIScheme), nil
}

// NewWithClient wraps an existing S3 client.
func NewWithClient(client putObjectAPI, bucket, prefix, scheme string) *Bucket {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		scheme = "s3"
	}
	return &Bucket{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		scheme: scheme,
	}
}

func newS3Client(ctx context.Context, cfg config.ObjectStore) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Upload puts localPath at prefix/key and returns scheme://bucket/prefix/key.
func (b *Bucket) Upload(ctx context.Context, key, localPath, contentType string) (string, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrMediaProcessing, "objectstore", "read", localPath, err)
	}
	objectKey := b.objectKey(key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", services.Wrap(services.ErrTransient, "objectstore", "put object", objectKey, err)
	}
	return fmt.Sprintf("%s://%s/%s", b.scheme, b.bucket, objectKey), nil
}

func (b *Bucket) objectKey(key string) string {
	key = sanitizeKey(key)
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func sanitizeKey(key string) string {
	key = filepath.ToSlash(filepath.Clean(key))
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimPrefix(key, "./")
	for strings.HasPrefix(key, "../") {
		key = strings.TrimPrefix(key, "../")
	}
	return key
}
