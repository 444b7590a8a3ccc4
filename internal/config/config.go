package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.rishta/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session" env:"RISHTA_SESSION"`

	APIURL    string `toml:"api_url" env:"RISHTA_API_URL"`
	SocketURL string `toml:"socket_url" env:"RISHTA_SOCKET_URL"`

	LogLevel    string `toml:"log_level" env:"RISHTA_LOG_LEVEL"`
	MetricsAddr string `toml:"metrics_addr" env:"RISHTA_METRICS_ADDR"`

	PresencePoll Duration `toml:"presence_poll" env:"RISHTA_PRESENCE_POLL"`
	TypingIdle   Duration `toml:"typing_idle" env:"RISHTA_TYPING_IDLE"`
	TypingTTL    Duration `toml:"typing_ttl" env:"RISHTA_TYPING_TTL"`

	RequestsPerSecond  float64 `toml:"requests_per_second" env:"RISHTA_REQUESTS_PER_SECOND"`
	MaxAttachmentBytes int64   `toml:"max_attachment_bytes" env:"RISHTA_MAX_ATTACHMENT_BYTES"`
}

// Duration is a time.Duration that reads and writes as "1m30s" text in TOML
// and environment variables.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		APIURL:             "http://localhost:8080",
		SocketURL:          "ws://localhost:8080/ws",
		LogLevel:           "info",
		PresencePoll:       Duration{30 * time.Second},
		TypingIdle:         Duration{1500 * time.Millisecond},
		TypingTTL:          Duration{5 * time.Second},
		RequestsPerSecond:  10,
		MaxAttachmentBytes: 10 << 20,
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective configuration: defaults, then the TOML file
// at path (a missing file is fine), then a .env file in the working
// directory, then RISHTA_* environment variables.
func Resolve(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
