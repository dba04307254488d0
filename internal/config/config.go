package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	MediaDir string `toml:"media_dir"`
	TempDir  string `toml:"temp_dir"`
	LogDir   string `toml:"log_dir"`
	EnvFile  string `toml:"env_file"`
}

// API contains the HTTP status surface settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Media contains ffmpeg/ffprobe settings for frame extraction and stitching.
type Media struct {
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
	ExtractTimeoutSeconds int    `toml:"extract_timeout_seconds"`
	ProbeTimeoutSeconds   int    `toml:"probe_timeout_seconds"`
	StitchTimeoutSeconds  int    `toml:"stitch_timeout_seconds"`
	CRF                   int    `toml:"crf"`
	Preset                string `toml:"preset"`
	AudioBitrate          string `toml:"audio_bitrate"`
	MinFreeGiB            int    `toml:"min_free_gib"`
}

// Polling contains the provider status polling cadence.
type Polling struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// Replicate contains configuration for the Replicate predictions API.
type Replicate struct {
	APIToken       string `toml:"api_token"`
	BaseURL        string `toml:"base_url"`
	VideoModel     string `toml:"video_model"`
	ImageModel     string `toml:"image_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WaveSpeed contains configuration for the WaveSpeed InfiniteTalk lip-sync API.
type WaveSpeed struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ElevenLabs contains configuration for text-to-speech.
type ElevenLabs struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	VoiceID        string `toml:"voice_id"`
	ModelID        string `toml:"model_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Vertex contains configuration for Veo on Vertex AI. Either AccessToken or
// TokenCommand supplies the OAuth bearer token.
type Vertex struct {
	ProjectID      string `toml:"project_id"`
	Location       string `toml:"location"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	AccessToken    string `toml:"access_token"`
	TokenCommand   string `toml:"token_command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ObjectStore contains the S3-compatible bucket used to publish reference
// frames for providers that only accept remote URIs.
type ObjectStore struct {
	Enabled         bool   `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	UsePathStyle    bool   `toml:"use_path_style"`
	URIScheme       string `toml:"uri_scheme"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// ReferenceImages bounds the size of images sent inline to providers.
type ReferenceImages struct {
	MaxWidth int `toml:"max_width"`
	MaxBytes int `toml:"max_bytes"`
}

// Config encapsulates all configuration values for reelsmith.
//
// Configuration sections by subsystem:
//   - Paths: state, media, temp and log directories, optional .env file
//   - API: HTTP job status surface
//   - Logging: log format, level, and retention
//   - Media: ffmpeg/ffprobe binaries, timeouts and the output encode profile
//   - Polling: provider status polling interval
//   - Replicate, WaveSpeed, ElevenLabs, Vertex: provider credentials and limits
//   - ObjectStore: bucket for reference frame uploads
//   - ReferenceImages: inline image size limits
type Config struct {
	Paths           Paths           `toml:"paths"`
	API             API             `toml:"api"`
	Logging         Logging         `toml:"logging"`
	Media           Media           `toml:"media"`
	Polling         Polling         `toml:"polling"`
	Replicate       Replicate       `toml:"replicate"`
	WaveSpeed       WaveSpeed       `toml:"wavespeed"`
	ElevenLabs      ElevenLabs      `toml:"elevenlabs"`
	Vertex          Vertex          `toml:"vertex"`
	ObjectStore     ObjectStore     `toml:"object_store"`
	ReferenceImages ReferenceImages `toml:"reference_images"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Credentials missing from the file are taken
// from the environment, after loading an optional .env file that never overrides
// variables already set.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile, resolvedPath); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// loadEnvFile loads explicit when set, otherwise a .env next to the config
// file if one exists. A missing explicit file is an error.
func loadEnvFile(explicit, configPath string) error {
	if strings.TrimSpace(explicit) != "" {
		path, err := expandPath(explicit)
		if err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if configPath == "" {
		return nil
	}
	candidate := filepath.Join(filepath.Dir(configPath), ".env")
	if info, err := os.Stat(candidate); err != nil || info.IsDir() {
		return nil
	}
	if err := godotenv.Load(candidate); err != nil {
		return fmt.Errorf("load env file %s: %w", candidate, err)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.MediaDir, c.Paths.TempDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsPath is the persisted job table document.
func (c *Config) JobsPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.json")
}

// MetadataPath is the sqlite media record database.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.StateDir, "media.db")
}

// LockPath is the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "reelsmith.lock")
}

// PollInterval returns the provider polling cadence.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.Polling.IntervalSeconds)
}

// ExtractTimeout bounds one ffmpeg frame grab.
func (c *Config) ExtractTimeout() time.Duration {
	return seconds(c.Media.ExtractTimeoutSeconds)
}

// ProbeTimeout bounds one ffprobe call.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Media.ProbeTimeoutSeconds)
}

// StitchTimeout bounds one stitch encode.
func (c *Config) StitchTimeout() time.Duration {
	return seconds(c.Media.StitchTimeoutSeconds)
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
