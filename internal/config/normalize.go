package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeMedia()
	c.normalizeProviders()
	c.normalizeObjectStore()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = filepath.Join(c.Paths.StateDir, "media")
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(os.TempDir(), "reelsmith")
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	c.Media.Preset = strings.TrimSpace(c.Media.Preset)
	if c.Media.Preset == "" {
		c.Media.Preset = defaultPreset
	}
	c.Media.AudioBitrate = strings.TrimSpace(c.Media.AudioBitrate)
	if c.Media.AudioBitrate == "" {
		c.Media.AudioBitrate = defaultAudioBitrate
	}
}

func (c *Config) normalizeProviders() {
	c.Replicate.APIToken = firstNonEmpty(c.Replicate.APIToken, os.Getenv("REPLICATE_API_TOKEN"))
	c.Replicate.BaseURL = trimURL(c.Replicate.BaseURL, defaultReplicateBaseURL)
	c.Replicate.VideoModel = strings.TrimSpace(c.Replicate.VideoModel)
	if c.Replicate.VideoModel == "" {
		c.Replicate.VideoModel = defaultReplicateVideoModel
	}
	c.Replicate.ImageModel = strings.TrimSpace(c.Replicate.ImageModel)
	if c.Replicate.ImageModel == "" {
		c.Replicate.ImageModel = defaultReplicateImageModel
	}

	c.WaveSpeed.APIKey = firstNonEmpty(c.WaveSpeed.APIKey, os.Getenv("WAVESPEED_API_KEY"))
	c.WaveSpeed.BaseURL = trimURL(c.WaveSpeed.BaseURL, defaultWaveSpeedBaseURL)

	c.ElevenLabs.APIKey = firstNonEmpty(c.ElevenLabs.APIKey, os.Getenv("ELEVENLABS_API_KEY"))
	c.ElevenLabs.BaseURL = trimURL(c.ElevenLabs.BaseURL, defaultElevenLabsBaseURL)
	c.ElevenLabs.VoiceID = strings.TrimSpace(c.ElevenLabs.VoiceID)
	if c.ElevenLabs.VoiceID == "" {
		c.ElevenLabs.VoiceID = defaultElevenLabsVoiceID
	}
	c.ElevenLabs.ModelID = strings.TrimSpace(c.ElevenLabs.ModelID)

	c.Vertex.ProjectID = firstNonEmpty(c.Vertex.ProjectID, os.Getenv("VERTEX_PROJECT_ID"))
	c.Vertex.AccessToken = firstNonEmpty(c.Vertex.AccessToken, os.Getenv("VERTEX_ACCESS_TOKEN"))
	c.Vertex.TokenCommand = strings.TrimSpace(c.Vertex.TokenCommand)
	c.Vertex.Location = strings.TrimSpace(c.Vertex.Location)
	if c.Vertex.Location == "" {
		c.Vertex.Location = defaultVertexLocation
	}
	c.Vertex.Model = strings.TrimSpace(c.Vertex.Model)
	if c.Vertex.Model == "" {
		c.Vertex.Model = defaultVertexModel
	}
	c.Vertex.BaseURL = trimURL(c.Vertex.BaseURL, fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", c.Vertex.Location))
}

func (c *Config) normalizeObjectStore() {
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	c.ObjectStore.Region = strings.TrimSpace(c.ObjectStore.Region)
	c.ObjectStore.Endpoint = strings.TrimRight(strings.TrimSpace(c.ObjectStore.Endpoint), "/")
	c.ObjectStore.Prefix = strings.Trim(strings.TrimSpace(c.ObjectStore.Prefix), "/")
	c.ObjectStore.URIScheme = strings.ToLower(strings.TrimSpace(c.ObjectStore.URIScheme))
	if c.ObjectStore.URIScheme == "" {
		c.ObjectStore.URIScheme = defaultObjectStoreURIScheme
	}
	c.ObjectStore.AccessKeyID = firstNonEmpty(c.ObjectStore.AccessKeyID, os.Getenv("AWS_ACCESS_KEY_ID"))
	c.ObjectStore.SecretAccessKey = firstNonEmpty(c.ObjectStore.SecretAccessKey, os.Getenv("AWS_SECRET_ACCESS_KEY"))
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = os.Getenv("AWS_REGION")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
