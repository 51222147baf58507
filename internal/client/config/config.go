package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the notesync CLI.
type Config struct {
	ServerEndpointAddr string
	// RealtimeURL is the websocket endpoint of the change notifier. Empty
	// disables realtime triggers; the periodic sync still runs.
	RealtimeURL string
	// DataDir holds the local replica. Empty means filex.DefaultDataDir.
	DataDir string

	AutoSync            bool
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	RealtimeDebounce    time.Duration

	BatchSize   int
	PageSize    int
	MaxAttempts int

	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RealtimeURL = "ws://127.0.0.1:8080/ws"
	c.DataDir = ""
	c.AutoSync = true
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.RealtimeDebounce = 800 * time.Millisecond
	c.BatchSize = 100
	c.PageSize = 500
	c.MaxAttempts = 5
	c.LogFile = ""
	c.LogLevel = "info"
}

// DatabasePath is the replica file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "notesync.db")
}

// LogPath is LogFile, or notesync.log inside DataDir when LogFile is empty.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "notesync.log")
}
