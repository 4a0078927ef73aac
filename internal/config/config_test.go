package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/config"
	"github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm"
	"github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  allowed_origins:
    - http://localhost:5173

coach:
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.2
  temperature: 0.7
  max_tokens: 200
  breaker:
    max_failures: 3
    reset_timeout: 10s

session:
  thinking_delay: 0s
  thinking_jitter: 250ms
  store_latency: simulated
  recent_corrections_limit: 5

rules:
  path: /etc/linguaflow/rules.yaml

observability:
  metrics_path: /internal/metrics
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Coach.Provider.Name != "openai" || cfg.Coach.Provider.Model != "gpt-4o-mini" {
		t.Errorf("coach.provider = %+v", cfg.Coach.Provider)
	}
	if len(cfg.Coach.Fallbacks) != 1 || cfg.Coach.Fallbacks[0].BaseURL != "http://localhost:11434" {
		t.Errorf("coach.fallbacks = %+v", cfg.Coach.Fallbacks)
	}
	if cfg.Coach.Breaker.MaxFailures != 3 || cfg.Coach.Breaker.ResetTimeout != 10*time.Second {
		t.Errorf("coach.breaker = %+v", cfg.Coach.Breaker)
	}
	if cfg.Coach.Breaker.HalfOpenMax != 3 {
		t.Errorf("coach.breaker.half_open_max = %d, want default 3", cfg.Coach.Breaker.HalfOpenMax)
	}
	if cfg.Session.ThinkingDelay != 0 || cfg.Session.ThinkingJitter != 250*time.Millisecond {
		t.Errorf("session timings = %+v", cfg.Session)
	}
	if cfg.Session.StoreLatency != config.StoreLatencySimulated || cfg.Session.RecentCorrectionsLimit != 5 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Rules.Path != "/etc/linguaflow/rules.yaml" || cfg.Observability.MetricsPath != "/internal/metrics" {
		t.Errorf("rules/observability = %+v / %+v", cfg.Rules, cfg.Observability)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	def := config.Default()
	if diff := cmp.Diff(def, cfg); diff != "" {
		t.Errorf("empty config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Session.ThinkingDelay != 1500*time.Millisecond || cfg.Session.ThinkingJitter != time.Second {
		t.Errorf("default thinking delay = %s + %s", cfg.Session.ThinkingDelay, cfg.Session.ThinkingJitter)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  port: 80\n"))
	if err == nil || !strings.Contains(err.Error(), "decode yaml") {
		t.Fatalf("expected decode error for unknown field, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"log level", func(c *config.Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		{"origin without scheme", func(c *config.Config) { c.Server.AllowedOrigins = []string{"example.com"} }, "server.allowed_origins[0]"},
		{"temperature", func(c *config.Config) { c.Coach.Temperature = 3 }, "coach.temperature"},
		{"max tokens", func(c *config.Config) { c.Coach.MaxTokens = -1 }, "coach.max_tokens"},
		{"breaker", func(c *config.Config) { c.Coach.Breaker.MaxFailures = -1 }, "coach.breaker"},
		{"provider model", func(c *config.Config) { c.Coach.Provider = config.ProviderEntry{Name: "openai"} }, "coach.provider.model"},
		{"fallback without primary", func(c *config.Config) {
			c.Coach.Fallbacks = []config.ProviderEntry{{Name: "ollama", Model: "llama3.2"}}
		}, "coach.fallbacks requires"},
		{"fallback name", func(c *config.Config) {
			c.Coach.Provider = config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}
			c.Coach.Fallbacks = []config.ProviderEntry{{Model: "x"}}
		}, "coach.fallbacks[0].name"},
		{"thinking delay", func(c *config.Config) { c.Session.ThinkingDelay = -time.Second }, "session.thinking_delay"},
		{"store latency", func(c *config.Config) { c.Session.StoreLatency = "slow" }, "session.store_latency"},
		{"recent limit", func(c *config.Config) { c.Session.RecentCorrectionsLimit = 0 }, "recent_corrections_limit"},
		{"metrics path", func(c *config.Config) { c.Observability.MetricsPath = "metrics" }, "observability.metrics_path"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "nope"
	cfg.Session.StoreLatency = "nope"
	cfg.Coach.Temperature = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "session.store_latency", "coach.temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestRegistry_UnknownLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		return &mock.Provider{ModelName: e.Model}, nil
	})
	reg.RegisterLLM("alpha", func(config.ProviderEntry) (llm.Provider, error) {
		return &mock.Provider{}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.Model() != "m1" {
		t.Errorf("Model() = %q, want m1", p.Model())
	}
	if got := strings.Join(reg.LLMNames(), ","); got != "alpha,mock" {
		t.Errorf("LLMNames = %s", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}
