// Package config handles daemon configuration: a JSON settings file merged
// with VIA_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	appName        = "voice-input-assistant"
	configFileName = "config.json"

	ProviderGoogle   = "google"
	ProviderDeepgram = "deepgram"

	BackendPortAudio = "portaudio"
	BackendFFmpeg    = "ffmpeg"
)

// Config stores runtime configuration for the dictation daemon.
type Config struct {
	Provider string         `json:"provider"`
	Google   GoogleConfig   `json:"google"`
	Deepgram DeepgramConfig `json:"deepgram"`
	Gemini   GeminiConfig   `json:"gemini"`
	Audio    AudioConfig    `json:"audio"`
	Hotkey   HotkeyConfig   `json:"hotkey"`
	Session  SessionConfig  `json:"session"`
	Rules    RulesConfig    `json:"rules"`
	Logging  LoggingConfig  `json:"logging"`
	Notify   NotifyConfig   `json:"notify"`
}

type GoogleConfig struct {
	CredentialsFile string   `json:"credentials_file"`
	LanguageCode    string   `json:"language_code"`
	Model           string   `json:"model"`
	UseEnhanced     bool     `json:"use_enhanced"`
	BoostPhrases    []string `json:"boost_phrases"`
	BoostValue      float64  `json:"boost_value"`
}

type DeepgramConfig struct {
	APIKey      string   `json:"api_key"`
	APIBaseURL  string   `json:"api_base_url"`
	Model       string   `json:"model"`
	Language    string   `json:"language"`
	SmartFormat bool     `json:"smart_format"`
	Keywords    []string `json:"keywords"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
}

type AudioConfig struct {
	Backend         string `json:"backend"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	FramesPerBuffer int    `json:"frames_per_buffer"`
	QueueCapacity   int    `json:"queue_capacity"`
	FFmpegCommand   string `json:"ffmpeg_command"`
	InputFormat     string `json:"input_format"`
	InputDevice     string `json:"input_device"`
}

type HotkeyConfig struct {
	Chord       string `json:"chord"`
	TapToRecord bool   `json:"tap_to_record"`
}

// SessionConfig carries the empirical timing windows. The paste and restore
// offsets are platform-dependent guesses, kept tunable rather than constant.
type SessionConfig struct {
	TailCaptureMs       int `json:"tail_capture_ms"`
	PasteDelayMs        int `json:"paste_delay_ms"`
	RestoreDelayMs      int `json:"restore_delay_ms"`
	TapThresholdMs      int `json:"tap_threshold_ms"`
	StreamWaitTimeoutMs int `json:"stream_wait_timeout_ms"`
}

func (s SessionConfig) TailCapture() time.Duration       { return msDuration(s.TailCaptureMs) }
func (s SessionConfig) PasteDelay() time.Duration        { return msDuration(s.PasteDelayMs) }
func (s SessionConfig) RestoreDelay() time.Duration      { return msDuration(s.RestoreDelayMs) }
func (s SessionConfig) TapThreshold() time.Duration      { return msDuration(s.TapThresholdMs) }
func (s SessionConfig) StreamWaitTimeout() time.Duration { return msDuration(s.StreamWaitTimeoutMs) }

type Replacement struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

type RulesConfig struct {
	Path           string        `json:"path"`
	Replacements   []Replacement `json:"replacements"`
	IterationLimit int           `json:"iteration_limit"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type NotifyConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load reads the settings file at path (or the default location when path is
// empty), overlays environment overrides, and fills defaults. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	applyEnv(&cfg)
	fillDefaults(&cfg)
	return cfg, nil
}

// Save persists the configuration to path, creating parent directories.
func Save(cfg Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that the selected backends can actually be used.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGoogle:
		// Credentials may come from GOOGLE_APPLICATION_CREDENTIALS or ambient
		// ADC, so an empty credentials file is acceptable here.
	case ProviderDeepgram:
		if strings.TrimSpace(c.Deepgram.APIKey) == "" {
			return errors.New("deepgram provider selected but no API key configured")
		}
	default:
		return fmt.Errorf("unknown transcription provider %q", c.Provider)
	}

	switch c.Audio.Backend {
	case BackendPortAudio, BackendFFmpeg:
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}

	if c.Google.BoostValue < 0 || c.Google.BoostValue > 20 {
		return fmt.Errorf("boost value %v outside the 0-20 range", c.Google.BoostValue)
	}

	if strings.TrimSpace(c.Hotkey.Chord) == "" {
		return errors.New("hotkey chord cannot be empty")
	}

	return nil
}

func defaults() Config {
	return Config{
		Provider: ProviderGoogle,
		Google: GoogleConfig{
			LanguageCode: "en-US",
			Model:        "latest_long",
			UseEnhanced:  true,
			BoostValue:   10.0,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/models",
			Model:   "gemini-2.5-flash",
		},
		Audio: AudioConfig{
			Backend:         BackendPortAudio,
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
			QueueCapacity:   64,
			FFmpegCommand:   "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
		},
		Hotkey: HotkeyConfig{
			Chord: "ctrl+space",
		},
		Session: SessionConfig{
			TailCaptureMs:       200,
			PasteDelayMs:        80,
			RestoreDelayMs:      350,
			TapThresholdMs:      400,
			StreamWaitTimeoutMs: 4000,
		},
		Rules: RulesConfig{
			IterationLimit: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Provider = envOrDefault("VIA_PROVIDER", cfg.Provider)

	cfg.Google.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", cfg.Google.CredentialsFile)
	cfg.Google.LanguageCode = envOrDefault("VIA_LANGUAGE_CODE", cfg.Google.LanguageCode)
	cfg.Google.Model = envOrDefault("VIA_GOOGLE_MODEL", cfg.Google.Model)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)

	cfg.Gemini.APIKey = envOrDefault("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Model = envOrDefault("VIA_GEMINI_MODEL", cfg.Gemini.Model)
	cfg.Gemini.Prompt = envOrDefault("VIA_POSTPROCESS_PROMPT", cfg.Gemini.Prompt)

	cfg.Audio.Backend = envOrDefault("VIA_AUDIO_BACKEND", cfg.Audio.Backend)
	cfg.Audio.SampleRate = envOrDefaultInt("VIA_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.InputDevice = envOrDefault("VIA_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.InputFormat = envOrDefault("VIA_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.FFmpegCommand = envOrDefault("VIA_FFMPEG_COMMAND", cfg.Audio.FFmpegCommand)

	cfg.Hotkey.Chord = envOrDefault("VIA_HOTKEY", cfg.Hotkey.Chord)
	cfg.Hotkey.TapToRecord = envOrDefaultBool("VIA_TAP_TO_RECORD", cfg.Hotkey.TapToRecord)

	cfg.Session.TailCaptureMs = envOrDefaultInt("VIA_TAIL_CAPTURE_MS", cfg.Session.TailCaptureMs)
	cfg.Session.PasteDelayMs = envOrDefaultInt("VIA_PASTE_DELAY_MS", cfg.Session.PasteDelayMs)
	cfg.Session.RestoreDelayMs = envOrDefaultInt("VIA_RESTORE_DELAY_MS", cfg.Session.RestoreDelayMs)

	cfg.Rules.Path = envOrDefault("VIA_RULES_FILE", cfg.Rules.Path)

	cfg.Logging.Level = envOrDefault("VIA_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("VIA_LOG_FORMAT", cfg.Logging.Format)
}

func fillDefaults(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		cfg.Audio.FramesPerBuffer = 1024
	}
	if cfg.Audio.QueueCapacity <= 0 {
		cfg.Audio.QueueCapacity = 64
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.TailCaptureMs < 0 {
		cfg.Session.TailCaptureMs = 0
	}
	if cfg.Session.StreamWaitTimeoutMs <= 0 {
		cfg.Session.StreamWaitTimeoutMs = 4000
	}
	if cfg.Session.TapThresholdMs <= 0 {
		cfg.Session.TapThresholdMs = 400
	}
}

func msDuration(ms int) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
