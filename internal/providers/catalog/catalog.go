// Package catalog builds the provider set from configuration. It lives apart
// from package providers because every adapter imports providers.
package catalog

import (
	"net/http"
	"path/filepath"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/media/refimage"
	"reelsmith/internal/objectstore"
	"reelsmith/internal/providers"
	"reelsmith/internal/providers/elevenlabs"
	"reelsmith/internal/providers/replicate"
	"reelsmith/internal/providers/vertex"
	"reelsmith/internal/providers/wavespeed"
)

// Options carries collaborators that are not part of the config file.
type Options struct {
	HTTPClient *http.Client
	Uploader   objectstore.Uploader
}

// FromConfig registers every adapter. Adapters without credentials are still
// registered so that a job naming them fails with a configuration error
// instead of an unknown-provider error.
func FromConfig(cfg *config.Config, opts Options) *providers.Set {
	set := providers.NewSet()
	images := refimage.NewEncoder(cfg.ReferenceImages.MaxWidth, cfg.ReferenceImages.MaxBytes)

	replicateOpts := []replicate.Option{replicate.WithImageEncoder(images)}
	wavespeedOpts := []wavespeed.Option{}
	elevenOpts := []elevenlabs.Option{}
	vertexOpts := []vertex.Option{
		vertex.WithImageEncoder(images),
		vertex.WithTempDir(filepath.Join(cfg.Paths.TempDir, "vertex")),
	}
	if opts.HTTPClient != nil {
		replicateOpts = append(replicateOpts, replicate.WithHTTPClient(opts.HTTPClient))
		wavespeedOpts = append(wavespeedOpts, wavespeed.WithHTTPClient(opts.HTTPClient))
		elevenOpts = append(elevenOpts, elevenlabs.WithHTTPClient(opts.HTTPClient))
		vertexOpts = append(vertexOpts, vertex.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Uploader != nil {
		vertexOpts = append(vertexOpts, vertex.WithUploader(opts.Uploader))
	}

	set.Add(replicate.New(cfg.Replicate, replicateOpts...), seconds(cfg.Replicate.TimeoutSeconds))
	set.Add(wavespeed.New(cfg.WaveSpeed, wavespeedOpts...), seconds(cfg.WaveSpeed.TimeoutSeconds))
	set.Add(elevenlabs.New(cfg.ElevenLabs, elevenOpts...), seconds(cfg.ElevenLabs.TimeoutSeconds))
	set.Add(vertex.New(cfg.Vertex, vertexOpts...), seconds(cfg.Vertex.TimeoutSeconds))
	return set
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
