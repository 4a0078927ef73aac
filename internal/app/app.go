// Package app wires the LinguaFlow subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, ApplyConfig takes
// hot-reloaded settings, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithResponder, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/api"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/coach"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/config"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/grammar"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/health"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/notify"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/observe"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/resilience"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/store"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	levels   *slog.LevelVar

	// Subsystems, initialised in New.
	store          *store.Store
	rules          *grammar.Registry
	responder      coach.Responder
	chain          *coach.Chain
	hub            *notify.Hub
	ctl            *chat.Controller
	metrics        *observe.Metrics
	metricsHandler http.Handler
	handler        http.Handler
	server         *http.Server

	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(st *store.Store) Option {
	return func(a *App) { a.store = st }
}

// WithResponder injects the coach instead of building one from
// config.Coach.
func WithResponder(r coach.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithRegistry supplies the LLM constructors used for config.Coach.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at config.Observability.MetricsPath.
// Default: [observe.MetricsHandler] on the default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets ApplyConfig change the level of the logger that uses
// lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = observe.MetricsHandler(nil)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if a.store == nil {
		var storeOpts []store.Option
		if cfg.Session.StoreLatency == config.StoreLatencySimulated {
			storeOpts = append(storeOpts, store.WithLatency(store.SimulatedLatency()))
		}
		a.store = store.New(storeOpts...)
	}

	// ── 2. Grammar rules ─────────────────────────────────────────────────
	rules, err := loadRules(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("app: load rules: %w", err)
	}
	a.rules = grammar.NewRegistry(rules)

	// ── 3. Coach ─────────────────────────────────────────────────────────
	if a.responder == nil {
		if err := a.initCoach(); err != nil {
			return nil, fmt.Errorf("app: init coach: %w", err)
		}
	}

	// ── 4. Controller ────────────────────────────────────────────────────
	a.hub = notify.NewHub()
	a.ctl = chat.NewController(a.store, a.rules, a.responder,
		chat.WithNotifier(notify.Multi(notify.LogNotifier{}, a.hub)),
		chat.WithEvents(a.hub),
		chat.WithMetrics(a.metrics),
		chat.WithThinkingDelay(cfg.Session.ThinkingDelay, cfg.Session.ThinkingJitter),
		chat.WithRecentLimit(cfg.Session.RecentCorrectionsLimit),
	)

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	checkers := []health.Checker{health.StoreChecker(a.store)}
	if a.chain != nil {
		checkers = append(checkers, health.FuncChecker("coach", a.chain.Healthy))
	}
	a.handler = api.New(a.ctl,
		api.WithEvents(a.hub),
		api.WithHealth(health.New(checkers...)),
		api.WithMetrics(a.metrics),
		api.WithMetricsHandler(cfg.Observability.MetricsPath, a.metricsHandler),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	).Handler()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.closers = append(a.closers, a.server.Shutdown)

	slog.Info("app initialised",
		"rules", len(rules),
		"coach", a.coachName(),
		"store_latency", string(cfg.Session.StoreLatency),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// loadRules reads the rule file at path, or returns the built-in table when
// path is empty.
func loadRules(path string) ([]grammar.Rule, error) {
	if path == "" {
		return grammar.DefaultRules(), nil
	}
	rules, err := grammar.LoadRules(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded grammar rules", "path", path, "count", len(rules))
	return rules, nil
}

// initCoach builds the reply chain: the configured LLM backends in order,
// each behind a circuit breaker, with the canned phrases as the last
// resort. Without a configured provider the canned phrases answer alone.
func (a *App) initCoach() error {
	canned := coach.NewCanned()
	cc := a.cfg.Coach
	if cc.Provider.Name == "" {
		a.responder = canned
		return nil
	}

	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cc.Breaker.MaxFailures,
			ResetTimeout: cc.Breaker.ResetTimeout,
			HalfOpenMax:  cc.Breaker.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	llmCfg := coach.LLMConfig{
		SystemPrompt: cc.SystemPrompt,
		Temperature:  cc.Temperature,
		MaxTokens:    cc.MaxTokens,
	}

	primary, err := a.registry.CreateLLM(cc.Provider)
	if err != nil {
		return err
	}
	a.chain = coach.NewChain(coach.NewLLM(primary, llmCfg), entryName(cc.Provider), fb)
	slog.Info("coach provider created", "name", cc.Provider.Name, "model", cc.Provider.Model)

	for _, entry := range cc.Fallbacks {
		p, err := a.registry.CreateLLM(entry)
		if err != nil {
			return fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		a.chain.Then(entryName(entry), coach.NewLLM(p, llmCfg))
		slog.Info("coach fallback created", "name", entry.Name, "model", entry.Model)
	}
	a.chain.Then("canned", canned)
	a.responder = a.chain
	return nil
}

// entryName labels a backend in breaker logs and metrics.
func entryName(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

func (a *App) coachName() string {
	switch {
	case a.chain != nil:
		return entryName(a.cfg.Coach.Provider)
	case a.cfg.Coach.Provider.Name == "":
		return "canned"
	default:
		return "injected"
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the chat controller.
func (a *App) Controller() *chat.Controller { return a.ctl }

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the address Run is listening on, or nil before Run binds.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on config.Server.ListenAddr and blocks until ctx is
// cancelled or the listener fails. On cancellation it returns ctx.Err();
// call Shutdown afterwards to drain in-flight requests.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()
	slog.Info("app running", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig takes over the hot-reloadable settings of next that d marks
// as changed. Settings that need a restart are logged and otherwise
// ignored. It is meant to be the callback of a [config.Watcher].
func (a *App) ApplyConfig(_, next *config.Config, d config.ConfigDiff) {
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.RulesChanged {
		rules, err := loadRules(next.Rules.Path)
		if err != nil {
			slog.Warn("rule reload failed, keeping current rules", "path", next.Rules.Path, "err", err)
		} else {
			a.rules.Swap(rules)
			slog.Info("grammar rules reloaded", "count", len(rules))
		}
	}
	if d.ThinkingChanged {
		a.ctl.SetThinkingDelay(next.Session.ThinkingDelay, next.Session.ThinkingJitter)
		slog.Info("thinking delay changed",
			"delay", next.Session.ThinkingDelay,
			"jitter", next.Session.ThinkingJitter,
		)
	}
	if d.RecentLimitChanged {
		a.ctl.SetRecentLimit(next.Session.RecentCorrectionsLimit)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "fields", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "active_sessions", a.ctl.ActiveSessions())

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
