// Package config loads runtime configuration for the notesync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see LoadFile) selected via --config.
//  3. Persistent command-line flags (see BindFlags), applied only when set.
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "realtime_url": "ws://127.0.0.1:8080/ws",
//	  "data_dir": "/home/me/.config/notesync",
//	  "auto_sync": true,
//	  "sync_interval": "30s",
//	  "online_check_interval": "3s",
//	  "batch_size": 100,
//	  "page_size": 500
//	}
//
// An explicit empty "realtime_url" disables the websocket listener.
package config
