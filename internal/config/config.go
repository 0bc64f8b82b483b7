// Package config holds client configuration: defaults, an optional TOML
// file, and flag overrides layered in that order by cmd/campuschat.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values like "30s" parse.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds application configuration.
type Config struct {
	// BackendURL is the question-answering backend origin. The default
	// points at localhost; a real origin must be supplied explicitly.
	BackendURL string `toml:"backend_url"`

	// RequestTimeout applies per dispatch.
	RequestTimeout Duration `toml:"request_timeout"`

	// PollInterval is the health check cadence.
	PollInterval Duration `toml:"poll_interval"`

	// SearchLimit is the k passed to document searches.
	SearchLimit int `toml:"search_limit"`

	// CacheTTL bounds how long answers are reused for repeated
	// questions. Zero disables the cache.
	CacheTTL Duration `toml:"cache_ttl"`

	// TranscriptDB is the SQLite path for transcript persistence.
	// Empty disables persistence.
	TranscriptDB string `toml:"transcript_db"`

	Debug bool `toml:"debug"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		BackendURL:     "http://127.0.0.1:8000",
		RequestTimeout: Duration(30 * time.Second),
		PollInterval:   Duration(30 * time.Second),
		SearchLimit:    5,
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
