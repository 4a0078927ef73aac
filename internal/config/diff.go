package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// changes get their own fields; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RulesChanged is set when the rule file path changed. A [Watcher] also
	// sets it when the content of the rule file changed.
	RulesChanged bool

	// ThinkingChanged is set when the thinking delay or jitter changed.
	ThinkingChanged bool

	// RecentLimitChanged is set when the recent corrections limit changed.
	RecentLimitChanged bool

	// RestartRequired names changed fields that only take effect after a
	// restart, in a stable order.
	RestartRequired []string
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RulesChanged && !d.ThinkingChanged &&
		!d.RecentLimitChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.RulesChanged = old.Rules.Path != new.Rules.Path
	d.ThinkingChanged = old.Session.ThinkingDelay != new.Session.ThinkingDelay ||
		old.Session.ThinkingJitter != new.Session.ThinkingJitter
	d.RecentLimitChanged = old.Session.RecentCorrectionsLimit != new.Session.RecentCorrectionsLimit

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.allowed_origins")
	}
	if !reflect.DeepEqual(old.Coach, new.Coach) {
		d.RestartRequired = append(d.RestartRequired, "coach")
	}
	if old.Session.StoreLatency != new.Session.StoreLatency {
		d.RestartRequired = append(d.RestartRequired, "session.store_latency")
	}
	if old.Observability.MetricsPath != new.Observability.MetricsPath {
		d.RestartRequired = append(d.RestartRequired, "observability.metrics_path")
	}
	slices.Sort(d.RestartRequired)
	return d
}
