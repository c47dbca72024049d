// Package config loads the call engine's configuration from the process
// environment (with local .env support), following the env-var-with-defaults
// style used throughout the reference stack rather than a config-file format.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/code-100-precent/LingEcho/pkg/logger"
)

// Config is the root configuration for the call engine process.
type Config struct {
	Server      ServerConfig
	Log         logger.LogConfig
	Database    DatabaseConfig
	SIP         SIPConfig
	RTP         RTPConfig
	Call        CallConfig
	Transcriber TranscriberConfig
	LLM         LLMConfig
	TTS         TTSConfig
	Storage     StorageConfig
}

// ServerConfig controls the HTTP surface used for /metrics and the hosted
// media-stream WebSocket listener (§6.2).
type ServerConfig struct {
	Addr           string // e.g. ":8070"
	MetricsPath    string
	MediaStreamURL string // path the hosted transport listens on, e.g. "/media-stream"
}

// DatabaseConfig backs the one persisted record (§6.3).
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// SIPConfig configures the outbound SIP user agent (§4.6).
type SIPConfig struct {
	TrunkHost     string
	TrunkPort     int
	Username      string
	Password      string
	DisplayName   string
	RegisterEvery int // seconds; re-REGISTER cadence
	PublicIPURL   string
}

// RTPConfig configures the per-call media socket (§4.7).
type RTPConfig struct {
	PortMin int
	PortMax int
}

// CallConfig configures orchestrator timing defaults (§4.9) and the
// per-process default first-message behavior, standing in for the
// per-agent configuration an excluded CRUD layer would otherwise supply.
type CallConfig struct {
	SilenceTimeoutSeconds int
	MaxDurationSeconds    int
	ResponseDelaySeconds  float64
	UtteranceFallbackMs   int
	FirstMessage          string
	FirstMessageMode      string // "assistant-speaks-first" | "user-speaks-first"
}

// TranscriberConfig configures the default STT provider (§4.2).
type TranscriberConfig struct {
	Provider string // "deepgram" | "aws"
	APIKey   string
	Region   string
	Language string
}

// LLMConfig configures the default LLM provider (§4.3).
type LLMConfig struct {
	Provider      string // "openai" | ...
	APIKey        string
	BaseURL       string
	Model         string
	SystemPrompt  string
	Temperature   float64
	MaxTokens     int
	HistoryLimit  int
	RetainedTurns int
}

// TTSConfig configures the default TTS provider (§4.4).
type TTSConfig struct {
	Provider   string // "elevenlabs" | "polly"
	APIKey     string
	VoiceID    string
	ModelID    string
	Region     string
	V3ModelIDs []string // not loaded from the environment and not read; voice settings are omitted for any model ID ending in "_v3" (synthesizer.IsV3Model)

	Stability       float64
	SimilarityBoost float64
	Speed           float64
	UseSpeakerBoost bool
	LanguageCode    string // forwarded when non-English or Hinglish mode is on
}

// StorageConfig configures the recording upload collaborator (§4.5, out of
// scope business-logic-wise — only bucket/credentials are consumed here).
type StorageConfig struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// Global holds the process-wide configuration set by Load.
var Global *Config

// Load reads .env (if present) then populates Global from the environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile) // optional; missing .env is not an error

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getStringOrDefault("SERVER_ADDR", ":8070"),
			MetricsPath:    getStringOrDefault("METRICS_PATH", "/metrics"),
			MediaStreamURL: getStringOrDefault("MEDIA_STREAM_PATH", "/media-stream"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/callengine.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./callengine.db"),
		},
		SIP: SIPConfig{
			TrunkHost:     getStringOrDefault("SIP_TRUNK_HOST", ""),
			TrunkPort:     getIntOrDefault("SIP_TRUNK_PORT", 5060),
			Username:      getStringOrDefault("SIP_USERNAME", ""),
			Password:      getStringOrDefault("SIP_PASSWORD", ""),
			DisplayName:   getStringOrDefault("SIP_DISPLAY_NAME", "voice-agent"),
			RegisterEvery: getIntOrDefault("SIP_REGISTER_EVERY", 3600),
			PublicIPURL:   getStringOrDefault("PUBLIC_IP_URL", "https://api.ipify.org"),
		},
		RTP: RTPConfig{
			PortMin: getIntOrDefault("RTP_PORT_MIN", 10000),
			PortMax: getIntOrDefault("RTP_PORT_MAX", 20000),
		},
		Call: CallConfig{
			SilenceTimeoutSeconds: getIntOrDefault("CALL_SILENCE_TIMEOUT_SECONDS", 30),
			MaxDurationSeconds:    getIntOrDefault("CALL_MAX_DURATION_SECONDS", 1800),
			ResponseDelaySeconds:  getFloatOrDefault("CALL_RESPONSE_DELAY_SECONDS", 0.3),
			UtteranceFallbackMs:   getIntOrDefault("CALL_UTTERANCE_FALLBACK_MS", 1500),
			FirstMessage:          getStringOrDefault("CALL_FIRST_MESSAGE", ""),
			FirstMessageMode:      getStringOrDefault("CALL_FIRST_MESSAGE_MODE", "user-speaks-first"),
		},
		Transcriber: TranscriberConfig{
			Provider: getStringOrDefault("STT_PROVIDER", "deepgram"),
			APIKey:   getStringOrDefault("STT_API_KEY", ""),
			Region:   getStringOrDefault("STT_REGION", "us-east-1"),
			Language: getStringOrDefault("STT_LANGUAGE", "en-US"),
		},
		LLM: LLMConfig{
			Provider:      getStringOrDefault("LLM_PROVIDER", "openai"),
			APIKey:        getStringOrDefault("LLM_API_KEY", ""),
			BaseURL:       getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
			Model:         getStringOrDefault("LLM_MODEL", "gpt-4o-mini"),
			SystemPrompt:  getStringOrDefault("LLM_SYSTEM_PROMPT", "You are a helpful phone agent."),
			Temperature:   getFloatOrDefault("LLM_TEMPERATURE", 0.7),
			MaxTokens:     getIntOrDefault("LLM_MAX_TOKENS", 512),
			HistoryLimit:  getIntOrDefault("LLM_HISTORY_LIMIT", 20),
			RetainedTurns: getIntOrDefault("LLM_RETAINED_TURNS", 5),
		},
		TTS: TTSConfig{
			Provider:        getStringOrDefault("TTS_PROVIDER", "elevenlabs"),
			APIKey:          getStringOrDefault("TTS_API_KEY", ""),
			VoiceID:         getStringOrDefault("TTS_VOICE_ID", ""),
			ModelID:         getStringOrDefault("TTS_MODEL_ID", "eleven_turbo_v2_5"),
			Region:          getStringOrDefault("TTS_REGION", "us-east-1"),
			Stability:       getFloatOrDefault("TTS_STABILITY", 0.5),
			SimilarityBoost: getFloatOrDefault("TTS_SIMILARITY_BOOST", 0.75),
			Speed:           getFloatOrDefault("TTS_SPEED", 1.0),
			UseSpeakerBoost: getBoolOrDefault("TTS_USE_SPEAKER_BOOST", true),
			LanguageCode:    getStringOrDefault("TTS_LANGUAGE_CODE", ""),
		},
		Storage: StorageConfig{
			Bucket:    getStringOrDefault("STORAGE_BUCKET", ""),
			Region:    getStringOrDefault("STORAGE_REGION", ""),
			AccessKey: getStringOrDefault("STORAGE_ACCESS_KEY", ""),
			SecretKey: getStringOrDefault("STORAGE_SECRET_KEY", ""),
			Endpoint:  getStringOrDefault("STORAGE_ENDPOINT", ""),
		},
	}

	Global = cfg
	return cfg, nil
}

func getStringOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
