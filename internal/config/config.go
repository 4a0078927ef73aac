// Package config provides the configuration schema, loader, hot-reload
// watcher and coach provider registry of the LinguaFlow service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreLatency selects how the in-memory store paces its operations.
type StoreLatency string

const (
	// StoreLatencyNone serves every operation immediately.
	StoreLatencyNone StoreLatency = "none"

	// StoreLatencySimulated reproduces the response times of a remote
	// backend.
	StoreLatencySimulated StoreLatency = "simulated"
)

// IsValid reports whether s is a recognised latency mode.
func (s StoreLatency) IsValid() bool {
	return s == StoreLatencyNone || s == StoreLatencySimulated
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; keys missing from the file keep
// the values of [Default].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Coach         CoachConfig         `yaml:"coach"`
	Session       SessionConfig       `yaml:"session"`
	Rules         RulesConfig         `yaml:"rules"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists the browser origins accepted by CORS and the
	// event stream, e.g. "https://app.example.com". Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CoachConfig selects how coach replies are produced. With an empty
// Provider.Name the coach answers from its canned phrase list.
type CoachConfig struct {
	// Provider is the primary LLM backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open. The canned phrase list is always the last resort.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Temperature is the sampling temperature passed to the LLM. 0 leaves
	// the backend default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the reply length. 0 leaves the backend default.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt replaces the built-in coach persona when non-empty.
	SystemPrompt string `yaml:"system_prompt"`

	// Breaker configures the circuit breaker around each LLM backend.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig mirrors the circuit breaker settings of the resilience
// package.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry is the configuration block of one LLM backend. Name is used
// to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend (e.g. "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey authenticates against the backend. Empty falls back to the
	// backend's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the backend (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig tunes the send cycle.
type SessionConfig struct {
	// ThinkingDelay is the fixed part of the pause before a coach reply.
	ThinkingDelay time.Duration `yaml:"thinking_delay"`

	// ThinkingJitter is the upper bound of the random part of the pause.
	ThinkingJitter time.Duration `yaml:"thinking_jitter"`

	// StoreLatency is "none" or "simulated".
	StoreLatency StoreLatency `yaml:"store_latency"`

	// RecentCorrectionsLimit is the default size of the recent corrections
	// list.
	RecentCorrectionsLimit int `yaml:"recent_corrections_limit"`
}

// RulesConfig locates the grammar rule table.
type RulesConfig struct {
	// Path is a YAML rule file. Empty uses the built-in table.
	Path string `yaml:"path"`
}

// ObservabilityConfig configures telemetry endpoints.
type ObservabilityConfig struct {
	// MetricsPath is where Prometheus metrics are served.
	MetricsPath string `yaml:"metrics_path"`
}

// Default returns the configuration used for every key a file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Coach: CoachConfig{
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
		},
		Session: SessionConfig{
			ThinkingDelay:          1500 * time.Millisecond,
			ThinkingJitter:         1000 * time.Millisecond,
			StoreLatency:           StoreLatencyNone,
			RecentCorrectionsLimit: 10,
		},
		Observability: ObservabilityConfig{
			MetricsPath: "/metrics",
		},
	}
}
