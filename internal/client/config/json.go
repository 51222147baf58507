package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/notesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. Absent fields keep the value
// already in Config.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	RealtimeURL         *string        `json:"realtime_url"`
	DataDir             string         `json:"data_dir"`
	AutoSync            *bool          `json:"auto_sync"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	RealtimeDebounce    timex.Duration `json:"realtime_debounce"`
	BatchSize           int            `json:"batch_size"`
	PageSize            int            `json:"page_size"`
	MaxAttempts         int            `json:"max_attempts"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}

func overlayInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// LoadFile overlays cfg with the JSON file at path.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	overlayString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	if jc.RealtimeURL != nil {
		cfg.RealtimeURL = *jc.RealtimeURL
	}
	overlayString(&cfg.DataDir, jc.DataDir)
	if jc.AutoSync != nil {
		cfg.AutoSync = *jc.AutoSync
	}
	overlayDuration(&cfg.SyncInterval, jc.SyncInterval)
	overlayDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	overlayDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	overlayDuration(&cfg.RealtimeDebounce, jc.RealtimeDebounce)
	overlayInt(&cfg.BatchSize, jc.BatchSize)
	overlayInt(&cfg.PageSize, jc.PageSize)
	overlayInt(&cfg.MaxAttempts, jc.MaxAttempts)
	overlayString(&cfg.LogFile, jc.LogFile)
	overlayString(&cfg.LogLevel, jc.LogLevel)
	return nil
}
