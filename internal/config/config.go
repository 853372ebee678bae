// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Nested sections map to koanf keys separated by ".".
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration for both the server and the session runtime.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile mirrors logs into a rotated file when set.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DedupeSize bounds the chunk receipt tracker.
	DedupeSize int `koanf:"dedupe_size"`

	Store   StoreConfig   `koanf:"store"`
	Catalog CatalogConfig `koanf:"catalog"`
	Blob    BlobConfig    `koanf:"blob"`
	LLM     LLMConfig     `koanf:"llm"`
	ASR     ASRConfig     `koanf:"asr"`
	Scoring ScoringConfig `koanf:"scoring"`
	Session SessionConfig `koanf:"session"`
}

// StoreConfig selects the attempt/transcript/report store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	// LogSQL routes gorm traces to the debug log.
	LogSQL bool `koanf:"log_sql"`
}

// CatalogConfig points at the YAML catalog of interviews, rubrics and invitations.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// BlobConfig configures where chunks and proctor photos are written.
type BlobConfig struct {
	Dir string `koanf:"dir"`
}

// LLMConfig configures the text-completion backend.
type LLMConfig struct {
	// Provider is gemini or none. With none every LLM call fails fast and
	// the callers fall back.
	Provider    string        `koanf:"provider"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	MaxRetries  int           `koanf:"max_retries"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ASRConfig configures the speech-to-text backend behind the relay endpoint.
type ASRConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// ScoringConfig tunes the fallback heuristic and report generation.
type ScoringConfig struct {
	MinWords  int  `koanf:"min_words"`
	LengthCap int  `koanf:"length_cap"`
	BypassLLM bool `koanf:"bypass_llm"`
}

// SessionConfig tunes the candidate-side runtime.
type SessionConfig struct {
	ServerURL string `koanf:"server_url"`
	Token     string `koanf:"token"`

	UploadQueueSize   int           `koanf:"upload_queue_size"`
	UploadBaseDelay   time.Duration `koanf:"upload_base_delay"`
	UploadMultiplier  float64       `koanf:"upload_multiplier"`
	UploadMaxAttempts int           `koanf:"upload_max_attempts"`

	ProctorMinInterval time.Duration `koanf:"proctor_min_interval"`
	ProctorMaxInterval time.Duration `koanf:"proctor_max_interval"`
	ProctorThreshold   float64       `koanf:"proctor_threshold"`
	CascadePath        string        `koanf:"cascade_path"`

	SegmentDuration time.Duration `koanf:"segment_duration"`
	HTTPTimeout     time.Duration `koanf:"http_timeout"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		LogFormat:  "text",
		Addr:       ":9080",
		DedupeSize: 100_000,
		Store: StoreConfig{
			Driver: "memory",
		},
		Catalog: CatalogConfig{
			Path: "catalog.yaml",
		},
		Blob: BlobConfig{
			Dir: "data/blobs",
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			MaxRetries:  3,
			Timeout:     60 * time.Second,
		},
		ASR: ASRConfig{
			Timeout: 30 * time.Second,
		},
		Scoring: ScoringConfig{
			MinWords:  12,
			LengthCap: 300,
		},
		Session: SessionConfig{
			ServerURL:          "http://localhost:9080",
			UploadQueueSize:    256,
			UploadBaseDelay:    500 * time.Millisecond,
			UploadMultiplier:   1.8,
			UploadMaxAttempts:  5,
			ProctorMinInterval: 2 * time.Second,
			ProctorMaxInterval: 5 * time.Second,
			ProctorThreshold:   0.25,
			SegmentDuration:    4 * time.Second,
			HTTPTimeout:        30 * time.Second,
		},
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %q", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	switch c.LLM.Provider {
	case "gemini", "none":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.Scoring.MinWords < 0 || c.Scoring.LengthCap <= 0 {
		return fmt.Errorf("%w: scoring.min_words must be >= 0 and scoring.length_cap > 0", ErrInvalidConfig)
	}
	s := c.Session
	if s.UploadMaxAttempts < 1 || s.UploadBaseDelay <= 0 || s.UploadMultiplier < 1 {
		return fmt.Errorf("%w: upload retry policy must have attempts >= 1, delay > 0, multiplier >= 1", ErrInvalidConfig)
	}
	if s.ProctorMinInterval <= 0 || s.ProctorMaxInterval < s.ProctorMinInterval {
		return fmt.Errorf("%w: proctor interval bounds are inverted", ErrInvalidConfig)
	}
	if s.ProctorThreshold <= 0 || s.ProctorThreshold > 1 {
		return fmt.Errorf("%w: proctor threshold must be in (0,1]", ErrInvalidConfig)
	}
	return nil
}
