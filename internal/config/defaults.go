package config

const (
	defaultConfigPath            = "~/.config/reelsmith/config.toml"
	defaultStateDir              = "~/.local/share/reelsmith"
	defaultAPIBind               = "127.0.0.1:7487"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultExtractTimeoutSeconds = 60
	defaultProbeTimeoutSeconds   = 15
	defaultStitchTimeoutSeconds  = 900
	defaultCRF                   = 18
	defaultPreset                = "medium"
	defaultAudioBitrate          = "192k"
	defaultMinFreeGiB            = 2
	defaultPollIntervalSeconds   = 5
	defaultReplicateBaseURL      = "https://api.replicate.com/v1"
	defaultReplicateVideoModel   = "google/veo-3.1"
	defaultReplicateImageModel   = "black-forest-labs/flux-1.1-pro"
	defaultReplicateTimeout      = 900
	defaultWaveSpeedBaseURL      = "https://api.wavespeed.ai/api/v3"
	defaultWaveSpeedTimeout      = 600
	defaultElevenLabsBaseURL     = "https://api.elevenlabs.io/v1"
	defaultElevenLabsVoiceID     = "21m00Tcm4TlvDq8ikWAM"
	defaultElevenLabsTimeout     = 120
	defaultVertexLocation        = "us-central1"
	defaultVertexModel           = "veo-3.1-generate-preview"
	defaultVertexTimeout         = 600
	defaultObjectStorePrefix     = "frames"
	defaultObjectStoreURIScheme  = "s3"
	defaultReferenceMaxWidth     = 1280
	defaultReferenceMaxBytes     = 250 * 1024
)

// Default returns a Config populated with repository defaults. Media and log
// directories stay empty so normalize derives them from state_dir.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Media: Media{
			FFmpegBinary:          defaultFFmpegBinary,
			FFprobeBinary:         defaultFFprobeBinary,
			ExtractTimeoutSeconds: defaultExtractTimeoutSeconds,
			ProbeTimeoutSeconds:   defaultProbeTimeoutSeconds,
			StitchTimeoutSeconds:  defaultStitchTimeoutSeconds,
			CRF:                   defaultCRF,
			Preset:                defaultPreset,
			AudioBitrate:          defaultAudioBitrate,
			MinFreeGiB:            defaultMinFreeGiB,
		},
		Polling: Polling{
			IntervalSeconds: defaultPollIntervalSeconds,
		},
		Replicate: Replicate{
			BaseURL:        defaultReplicateBaseURL,
			VideoModel:     defaultReplicateVideoModel,
			ImageModel:     defaultReplicateImageModel,
			TimeoutSeconds: defaultReplicateTimeout,
		},
		WaveSpeed: WaveSpeed{
			BaseURL:        defaultWaveSpeedBaseURL,
			TimeoutSeconds: defaultWaveSpeedTimeout,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        defaultElevenLabsBaseURL,
			VoiceID:        defaultElevenLabsVoiceID,
			TimeoutSeconds: defaultElevenLabsTimeout,
		},
		Vertex: Vertex{
			Location:       defaultVertexLocation,
			Model:          defaultVertexModel,
			TimeoutSeconds: defaultVertexTimeout,
		},
		ObjectStore: ObjectStore{
			Prefix:    defaultObjectStorePrefix,
			URIScheme: defaultObjectStoreURIScheme,
		},
		ReferenceImages: ReferenceImages{
			MaxWidth: defaultReferenceMaxWidth,
			MaxBytes: defaultReferenceMaxBytes,
		},
	}
}
