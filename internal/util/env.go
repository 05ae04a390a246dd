// Package util provides environment variable parsing helpers shared across
// components.
package util

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseBoolEnv parses a boolean environment variable with a default value.
// Accepts: true/1/yes/on and false/0/no/off (case-insensitive). Invalid
// values return the default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}

// ParseIntEnv parses an integer environment variable with a default value.
func ParseIntEnv(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		slog.Warn("ParseIntEnv: invalid integer value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
	return v
}

// ParseDurationEnv parses a duration environment variable (e.g. "5s",
// "2m") with a default value.
func ParseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		slog.Warn("ParseDurationEnv: invalid duration value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
	return d
}
