package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable. Provider credentials are not
// required here: a job for an unconfigured provider fails with a
// configuration error instead, so the daemon can run with any subset.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	if c.ReferenceImages.MaxWidth <= 0 || c.ReferenceImages.MaxBytes <= 0 {
		return errors.New("reference_images.max_width and reference_images.max_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.CRF < 0 || c.Media.CRF > 51 {
		return errors.New("media.crf must be between 0 and 51")
	}
	if c.Media.MinFreeGiB < 0 {
		return errors.New("media.min_free_gib must not be negative")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	checks := []struct {
		name  string
		value int
	}{
		{"media.extract_timeout_seconds", c.Media.ExtractTimeoutSeconds},
		{"media.probe_timeout_seconds", c.Media.ProbeTimeoutSeconds},
		{"media.stitch_timeout_seconds", c.Media.StitchTimeoutSeconds},
		{"polling.interval_seconds", c.Polling.IntervalSeconds},
		{"replicate.timeout_seconds", c.Replicate.TimeoutSeconds},
		{"wavespeed.timeout_seconds", c.WaveSpeed.TimeoutSeconds},
		{"elevenlabs.timeout_seconds", c.ElevenLabs.TimeoutSeconds},
		{"vertex.timeout_seconds", c.Vertex.TimeoutSeconds},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%s must be positive", check.name)
		}
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	switch c.ObjectStore.URIScheme {
	case "s3", "gs":
	default:
		return fmt.Errorf("object_store.uri_scheme: unsupported value %q (want s3 or gs)", c.ObjectStore.URIScheme)
	}
	if c.ObjectStore.Enabled && c.ObjectStore.Bucket == "" {
		return errors.New("object_store.bucket must be set when object_store.enabled is true")
	}
	return nil
}
