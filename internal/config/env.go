// Package config provides environment-variable helpers and shared secret
// settings for the settlement services. Configuration is read once at startup
// and is immutable afterwards.
package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of the environment variable or the fallback.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable or the
// fallback when unset or unparsable.
func GetEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value (Go syntax, e.g. "24h") of the
// environment variable or the fallback when unset or unparsable.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
