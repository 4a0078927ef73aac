package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownCoachProviders lists the LLM backend names the service ships with.
// [Validate] warns about any other name.
var KnownCoachProviders = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	for i, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] %q must be \"*\" or a scheme://host origin", i, o))
		}
	}

	// Coach
	c := cfg.Coach
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("coach.temperature %.2f is out of range [0, 2]", c.Temperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("coach.max_tokens %d must not be negative", c.MaxTokens))
	}
	if c.Breaker.MaxFailures < 0 || c.Breaker.HalfOpenMax < 0 || c.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("coach.breaker values must not be negative"))
	}
	if c.Provider.Name == "" && len(c.Fallbacks) > 0 {
		errs = append(errs, errors.New("coach.fallbacks requires coach.provider to be set"))
	}
	if c.Provider.Name != "" {
		errs = append(errs, validateProvider("coach.provider", c.Provider)...)
	}
	for i, fb := range c.Fallbacks {
		prefix := fmt.Sprintf("coach.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateProvider(prefix, fb)...)
	}

	// Session
	s := cfg.Session
	if s.ThinkingDelay < 0 {
		errs = append(errs, fmt.Errorf("session.thinking_delay %s must not be negative", s.ThinkingDelay))
	}
	if s.ThinkingJitter < 0 {
		errs = append(errs, fmt.Errorf("session.thinking_jitter %s must not be negative", s.ThinkingJitter))
	}
	if !s.StoreLatency.IsValid() {
		errs = append(errs, fmt.Errorf("session.store_latency %q is invalid; valid values: none, simulated", s.StoreLatency))
	}
	if s.RecentCorrectionsLimit <= 0 {
		errs = append(errs, fmt.Errorf("session.recent_corrections_limit %d must be positive", s.RecentCorrectionsLimit))
	}

	// Observability
	if !strings.HasPrefix(cfg.Observability.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics_path %q must start with /", cfg.Observability.MetricsPath))
	}

	return errors.Join(errs...)
}

// validateProvider checks one provider entry. Unknown names only warn, so
// third-party registrations keep working.
func validateProvider(prefix string, e ProviderEntry) []error {
	var errs []error
	if e.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", prefix))
	}
	if !slices.Contains(KnownCoachProviders, e.Name) {
		slog.Warn("unknown coach provider name; may be a typo or a third-party registration",
			"field", prefix,
			"name", e.Name,
			"known", KnownCoachProviders,
		)
	}
	return errs
}
