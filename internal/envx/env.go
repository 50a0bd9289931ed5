// Package envx reads typed values from environment variables, falling back
// to the current value when a variable is unset or cannot be parsed.
package envx

import (
	"os"
	"strconv"
	"time"
)

// String returns the value of key, or def when it is unset or empty.
func String(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// Bool parses key with strconv.ParseBool.
func Bool(key string, def bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return def
}

// Int parses key as a base-10 integer.
func Int(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return def
}

// Seconds parses key as a whole number of seconds. Duration strings such as
// "1500ms" are accepted as well.
func Seconds(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return def
}
