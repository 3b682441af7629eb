// Package config provides typed accessors over environment configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omnilocation/omnilocation/internal/env"
)

// Environment variable names understood by the service.
const (
	EnvListenAddr   = "OMNI_LISTEN_ADDR"
	EnvDBPath       = "OMNI_DB_PATH"
	EnvTrackDir     = "OMNI_TRACK_DIR"
	EnvScanInterval = "OMNI_SCAN_INTERVAL"
	EnvADBDisabled  = "OMNI_ADB_DISABLED"
	// EnvDeviceAllowlist optionally restricts the pool to a subset of udids,
	// given as a comma/semicolon/whitespace-separated list.
	EnvDeviceAllowlist = "OMNI_DEVICE_ALLOWLIST"
)

var ensureOnce sync.Once

func ensureEnvLoaded() {
	ensureOnce.Do(func() {
		env.Ensure()
	})
}

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		lower := strings.ToLower(val)
		if lower == "1" || lower == "true" || lower == "yes" {
			return true
		}
		if lower == "0" || lower == "false" || lower == "no" {
			return false
		}
	}
	return fallback
}
