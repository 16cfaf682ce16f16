package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultBaseURL is the local-development backend endpoint used when no
// configuration is present.
const DefaultBaseURL = "http://127.0.0.1:8840"

// Config stores runtime configuration for the daybook client.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Audio   AudioConfig   `toml:"audio"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
}

// BackendConfig locates the productivity backend.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
}

// AudioConfig describes microphone capture.
type AudioConfig struct {
	FFmpegCommand string `toml:"ffmpeg_command"`
	InputFormat   string `toml:"input_format"`
	InputDevice   string `toml:"input_device"`
	SampleRate    int    `toml:"sample_rate"`
	Channels      int    `toml:"channels"`
	ChunkSize     int    `toml:"chunk_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// StorageConfig locates local state files.
type StorageConfig struct {
	ArchivePath string `toml:"archive_path"`
	LockPath    string `toml:"lock_path"`
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "daybook", "config.toml"), nil
}

// Load reads configuration from path (or the default location when path is
// empty), applies environment overrides and defaults, and validates.
// A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if decodeErr := toml.Unmarshal(data, &cfg); decodeErr != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, decodeErr)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DAYBOOK_BACKEND_URL")); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DAYBOOK_FFMPEG_COMMAND")); v != "" {
		cfg.Audio.FFmpegCommand = v
	}
	if v := strings.TrimSpace(os.Getenv("DAYBOOK_AUDIO_INPUT_FORMAT")); v != "" {
		cfg.Audio.InputFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("DAYBOOK_AUDIO_INPUT_DEVICE")); v != "" {
		cfg.Audio.InputDevice = v
	}
	if v := envInt("DAYBOOK_SAMPLE_RATE"); v > 0 {
		cfg.Audio.SampleRate = v
	}
	if v := strings.TrimSpace(os.Getenv("DAYBOOK_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")

	if cfg.Audio.FFmpegCommand == "" {
		cfg.Audio.FFmpegCommand = "ffmpeg"
	}
	if cfg.Audio.InputFormat == "" {
		cfg.Audio.InputFormat = "pulse"
	}
	if cfg.Audio.InputDevice == "" {
		cfg.Audio.InputDevice = "default"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Storage.ArchivePath == "" || cfg.Storage.LockPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			stateDir := filepath.Join(home, ".local", "state", "daybook")
			if cfg.Storage.ArchivePath == "" {
				cfg.Storage.ArchivePath = filepath.Join(stateDir, "archive.db")
			}
			if cfg.Storage.LockPath == "" {
				cfg.Storage.LockPath = filepath.Join(stateDir, "record.lock")
			}
		}
	}
}

func validate(cfg Config) error {
	parsed, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend base_url: invalid value %q", cfg.Backend.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend base_url: unsupported scheme %q", parsed.Scheme)
	}
	return nil
}

// WebSocketURL derives the transcribe socket URL from the backend base URL
// by substituting the scheme.
func (c Config) WebSocketURL() string {
	base := c.Backend.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/audio/transcribe"
}

func envInt(key string) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
