package config

import (
	"github.com/spf13/pflag"
)

const (
	flagServer       = "server"
	flagRealtime     = "realtime"
	flagDataDir      = "data-dir"
	flagAutoSync     = "auto-sync"
	flagSyncInterval = "sync-interval"
	flagOnlineCheck  = "online-check"
	flagTimeout      = "timeout"
	flagDebounce     = "debounce"
	flagBatchSize    = "batch-size"
	flagPageSize     = "page-size"
	flagMaxAttempts  = "max-attempts"
	flagLogFile      = "log-file"
	flagLogLevel     = "log-level"
)

// BindFlags registers the persistent client flags on fs, with the built-in
// defaults shown in help.
func BindFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(flagServer, "a", d.ServerEndpointAddr, "address and port of the sync server")
	fs.String(flagRealtime, d.RealtimeURL, "websocket URL of the change notifier (empty disables)")
	fs.StringP(flagDataDir, "d", d.DataDir, "directory of the local replica")
	fs.Bool(flagAutoSync, d.AutoSync, "sync in the background while the shell runs")
	fs.Duration(flagSyncInterval, d.SyncInterval, "periodic sync interval")
	fs.DurationP(flagOnlineCheck, "i", d.OnlineCheckInterval, "online status check interval")
	fs.Duration(flagTimeout, d.RequestTimeout, "per-request timeout")
	fs.Duration(flagDebounce, d.RealtimeDebounce, "quiet period before a realtime event triggers a sync")
	fs.Int(flagBatchSize, d.BatchSize, "outbox entries per push")
	fs.Int(flagPageSize, d.PageSize, "notes per pull page")
	fs.Int(flagMaxAttempts, d.MaxAttempts, "failed pushes before an entry is reported as stalled")
	fs.String(flagLogFile, d.LogFile, "log file (default <data-dir>/notesync.log)")
	fs.String(flagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
}

// ApplyFlags overlays c with the flags the user actually set.
func ApplyFlags(c *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}

	set(flagServer, func() (e error) { c.ServerEndpointAddr, e = fs.GetString(flagServer); return })
	set(flagRealtime, func() (e error) { c.RealtimeURL, e = fs.GetString(flagRealtime); return })
	set(flagDataDir, func() (e error) { c.DataDir, e = fs.GetString(flagDataDir); return })
	set(flagAutoSync, func() (e error) { c.AutoSync, e = fs.GetBool(flagAutoSync); return })
	set(flagSyncInterval, func() (e error) { c.SyncInterval, e = fs.GetDuration(flagSyncInterval); return })
	set(flagOnlineCheck, func() (e error) { c.OnlineCheckInterval, e = fs.GetDuration(flagOnlineCheck); return })
	set(flagTimeout, func() (e error) { c.RequestTimeout, e = fs.GetDuration(flagTimeout); return })
	set(flagDebounce, func() (e error) { c.RealtimeDebounce, e = fs.GetDuration(flagDebounce); return })
	set(flagBatchSize, func() (e error) { c.BatchSize, e = fs.GetInt(flagBatchSize); return })
	set(flagPageSize, func() (e error) { c.PageSize, e = fs.GetInt(flagPageSize); return })
	set(flagMaxAttempts, func() (e error) { c.MaxAttempts, e = fs.GetInt(flagMaxAttempts); return })
	set(flagLogFile, func() (e error) { c.LogFile, e = fs.GetString(flagLogFile); return })
	set(flagLogLevel, func() (e error) { c.LogLevel, e = fs.GetString(flagLogLevel); return })

	return err
}

// Load builds a Config from defaults, the optional JSON file at path and
// the flags set on fs, in that order of precedence.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if fs != nil {
		if err := ApplyFlags(cfg, fs); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
