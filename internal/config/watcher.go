package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OnChange receives the previous and the new config with what changed
// between them.
type OnChange func(old, new *Config, d ConfigDiff)

// fileState is the last seen version of a watched file.
type fileState struct {
	path  string
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

// Watcher follows a config file and the rule file it names. A config edit
// that still validates, or any edit of the rule file, is reported to the
// callback; an invalid config edit is logged and ignored.
//
// File system events trigger a check right away. The files are also polled
// every interval, which covers file systems that deliver no events.
type Watcher struct {
	path     string
	interval time.Duration
	onChange OnChange
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	current *Config
	config  fileState
	rules   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the fallback polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts watching it in the background. The rule
// file is optional: when it cannot be read the watcher reports it once it
// appears.
func NewWatcher(path string, onChange OnChange, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, state, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.config = state
	w.rules = readRuleState(cfg.Rules.Path)

	if fw, err := fsnotify.NewWatcher(); err != nil {
		slog.Warn("config watcher: file events unavailable, polling only", "err", err)
	} else {
		w.fs = fw
		w.follow(path)
		w.follow(cfg.Rules.Path)
	}

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.fs != nil {
		defer w.fs.Close()
		events, errs = w.fs.Events, w.fs.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.concerns(ev.Name) {
				w.check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config watcher: file event error", "err", err)
		}
	}
}

// follow subscribes to events in the directory of path. Watching the
// directory rather than the file keeps editors that save by rename visible.
func (w *Watcher) follow(path string) {
	if w.fs == nil || path == "" {
		return
	}
	dir := filepath.Dir(absPath(path))
	if err := w.fs.Add(dir); err != nil {
		slog.Warn("config watcher: cannot watch directory", "dir", dir, "err", err)
	}
}

// concerns reports whether an event for name may affect a watched file.
func (w *Watcher) concerns(name string) bool {
	name = absPath(name)
	w.mu.Lock()
	rules := w.rules.path
	w.mu.Unlock()
	return name == absPath(w.path) || (rules != "" && name == absPath(rules))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// check compares both files with their last seen state and reports a change
// to onChange.
func (w *Watcher) check() {
	w.mu.Lock()
	old := w.current
	cfgState := w.config
	ruleState := w.rules
	w.mu.Unlock()

	next := old
	cfgChanged := false
	if info, err := os.Stat(w.path); err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
	} else if !cfgState.sameStat(info) {
		cfg, state, err := loadConfigFile(w.path)
		switch {
		case err != nil:
			slog.Warn("config watcher: ignoring invalid config", "path", w.path, "err", err)
		case state.hash == cfgState.hash:
			cfgState = state
		default:
			next, cfgState, cfgChanged = cfg, state, true
		}
	}

	rulesEdited := false
	if next.Rules.Path != ruleState.path {
		ruleState = readRuleState(next.Rules.Path)
		w.follow(next.Rules.Path)
	} else if ruleState.path != "" {
		if info, err := os.Stat(ruleState.path); err == nil && !ruleState.sameStat(info) {
			state := readRuleState(ruleState.path)
			rulesEdited = state.hash != ruleState.hash
			ruleState = state
		}
	}

	w.mu.Lock()
	w.current = next
	w.config = cfgState
	w.rules = ruleState
	w.mu.Unlock()

	if !cfgChanged && !rulesEdited {
		return
	}

	d := Diff(old, next)
	if rulesEdited {
		d.RulesChanged = true
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"rules_edited", rulesEdited,
	)
	if w.onChange != nil {
		w.onChange(old, next, d)
	}
}

// sameStat reports whether info matches the recorded modification time and
// size, in which case the content is assumed unchanged.
func (s fileState) sameStat(info os.FileInfo) bool {
	return info.ModTime().Equal(s.mtime) && info.Size() == s.size
}

// readFileState reads path and records its state.
func readFileState(path string) (fileState, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileState{path: path}, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fileState{path: path}, nil, err
	}
	return fileState{
		path:  path,
		mtime: info.ModTime(),
		size:  info.Size(),
		hash:  sha256.Sum256(data),
	}, data, nil
}

func loadConfigFile(path string) (*Config, fileState, error) {
	state, data, err := readFileState(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, state, nil
}

// readRuleState records the rule file at path. An empty path or an
// unreadable file yields a state with no content hash.
func readRuleState(path string) fileState {
	if path == "" {
		return fileState{}
	}
	state, _, err := readFileState(path)
	if err != nil {
		slog.Warn("config watcher: cannot read rule file", "path", path, "err", err)
	}
	return state
}
