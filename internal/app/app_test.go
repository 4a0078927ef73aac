package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/app"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/catalog"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/coach"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/config"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/observe"
	"github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm"
	llmmock "github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm/mock"
)

const rulesYAML = `
rules:
  - label: "Articles"
    pattern: '\bi am engineer\b'
    original: "am engineer"
    corrected: "am an engineer"
    explanation: "Singular countable nouns need an article."
`

// testConfig returns a config with no thinking pause, listening on a free
// loopback port.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Session.ThinkingDelay = 0
	cfg.Session.ThinkingJitter = 0
	return cfg
}

func testOptions(t *testing.T, extra ...app.Option) []app.Option {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return append([]app.Option{
		app.WithMetrics(m),
		app.WithMetricsHandler(http.NotFoundHandler()),
	}, extra...)
}

func newApp(t *testing.T, cfg *config.Config, extra ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, testOptions(t, extra...)...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

// reply starts a conversation and returns the coach's answer to text.
func reply(t *testing.T, a *app.App, text string) string {
	t.Helper()
	ctx := context.Background()
	conv, err := a.Controller().StartConversation(ctx, catalog.Selection{Topic: "food", Difficulty: "beginner"})
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	turn, err := a.Controller().Send(ctx, conv.ID, text)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return turn.CoachMessage.Text
}

func TestNew_CannedCoach(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	got := reply(t, a, "hello")
	found := false
	for _, p := range coach.DefaultPhrases {
		if got == p {
			found = true
		}
	}
	if !found {
		t.Errorf("reply %q is not a canned phrase", got)
	}
}

func TestNew_InjectedResponder(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), app.WithResponder(coach.ResponderFunc(func(context.Context, string) (string, error) {
		return "injected", nil
	})))
	if got := reply(t, a, "hello"); got != "injected" {
		t.Errorf("reply = %q, want injected", got)
	}
}

func TestNew_LLMChainFallsBack(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{ModelName: "big", Err: errors.New("rate limited")}
	backup := &llmmock.Provider{ModelName: "small", Replies: []string{"¡Qué bien!"}}

	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })

	cfg := testConfig()
	cfg.Coach.Provider = config.ProviderEntry{Name: "primary", Model: "big"}
	cfg.Coach.Fallbacks = []config.ProviderEntry{{Name: "backup", Model: "small"}}
	cfg.Coach.SystemPrompt = "Be brief."

	a := newApp(t, cfg, app.WithRegistry(reg))
	if got := reply(t, a, "I like paella"); got != "¡Qué bien!" {
		t.Errorf("reply = %q, want the backup answer", got)
	}

	reqs := backup.Requests()
	if len(reqs) != 1 {
		t.Fatalf("backup requests = %d, want 1", len(reqs))
	}
	if reqs[0].SystemPrompt != "Be brief." {
		t.Errorf("backup request = %+v", reqs[0])
	}
	if diff := cmp.Diff([]string{"I like paella"}, primary.LearnerTurns()); diff != "" {
		t.Errorf("primary learner turns (-want +got):\n%s", diff)
	}
}

func TestNew_UnregisteredProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Coach.Provider = config.ProviderEntry{Name: "nope", Model: "x"}
	_, err := app.New(context.Background(), cfg, testOptions(t)...)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("New() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestNew_RulesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(rulesYAML), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	cfg := testConfig()
	cfg.Rules.Path = path

	a := newApp(t, cfg)
	rules := a.Controller().Rules().Rules()
	if len(rules) != 1 || rules[0].Label != "Articles" {
		t.Errorf("rules = %+v", rules)
	}

	cfg = testConfig()
	cfg.Rules.Path = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := app.New(context.Background(), cfg, testOptions(t)...); err == nil {
		t.Error("New() with missing rule file returned nil error")
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(rulesYAML), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	var lv slog.LevelVar
	old := testConfig()
	a := newApp(t, old, app.WithLevelVar(&lv))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Rules.Path = path
	next.Session.RecentCorrectionsLimit = 1
	a.ApplyConfig(old, next, config.Diff(old, next))

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	if rules := a.Controller().Rules().Rules(); len(rules) != 1 || rules[0].Label != "Articles" {
		t.Errorf("rules after reload = %+v", rules)
	}

	edited := strings.Replace(rulesYAML, `label: "Articles"`, `label: "Indefinite Articles"`, 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	a.ApplyConfig(next, next, config.ConfigDiff{RulesChanged: true})
	if rules := a.Controller().Rules().Rules(); len(rules) != 1 || rules[0].Label != "Indefinite Articles" {
		t.Errorf("rules after file edit = %+v", rules)
	}

	broken := testConfig()
	broken.Rules.Path = filepath.Join(t.TempDir(), "missing.yaml")
	a.ApplyConfig(next, broken, config.Diff(next, broken))
	if rules := a.Controller().Rules().Rules(); len(rules) != 1 || rules[0].Label != "Indefinite Articles" {
		t.Errorf("failed reload replaced the rules: %+v", rules)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	// Run in background.
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for a.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Run() did not bind within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestApp_RunListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg)
	if err := a.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("Run() error = %v, want listen error", err)
	}
}
