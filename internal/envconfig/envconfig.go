// Package envconfig reads the engine's LOCALINFER_* environment
// variables into typed values, the same trim-quotes-and-parse idiom the
// teacher's envconfig package uses for its OLLAMA_* variables.
//
// Grounded on envconfig/config.go's Var/LogLevel helpers.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Var returns an environment variable with surrounding whitespace and
// matching quote characters stripped.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel reads LOCALINFER_DEBUG: unset or "0"/"false" is Info, "1"/true
// is Debug, any other positive integer n maps to slog.Level(-4*n) the way
// OLLAMA_DEBUG-style env vars do (so 2 is more verbose than 1).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	s := Var("LOCALINFER_DEBUG")
	if s == "" {
		return level
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			level = slog.LevelDebug
		}
		return level
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && i != 0 {
		level = slog.Level(i * -4)
	}
	return level
}

// ModelsDir returns the root directory converted bundles are stored
// under, LOCALINFER_MODELS or a platform default
// under the user's home directory.
func ModelsDir() string {
	if s := Var("LOCALINFER_MODELS"); s != "" {
		return s
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".localinfer", "models")
	}
	return filepath.Join(home, ".localinfer", "models")
}

// Device returns LOCALINFER_DEVICE, default "cpu". Nothing in this
// module calls it; engine.Load takes its device name from
// LoadOptions.DeviceName.
func Device() string {
	if s := Var("LOCALINFER_DEVICE"); s != "" {
		return s
	}
	return "cpu"
}

// LoadTimeout returns LOCALINFER_LOAD_TIMEOUT parsed as a Go duration
// string, default 5 minutes (also when the value does not parse); a
// parsed value of 0 or less is returned as is. Nothing in this module
// calls it, and engine.Load applies no timeout of its own.
func LoadTimeout() time.Duration {
	s := Var("LOCALINFER_LOAD_TIMEOUT")
	if s == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// MaxShardBytes returns LOCALINFER_MAX_SHARD_BYTES as a positive byte
// count, or 0 when it is unset or invalid. Nothing in this module calls
// it; the converter's cap comes from converter.Options.MaxShardBytes.
func MaxShardBytes() int64 {
	s := Var("LOCALINFER_MAX_SHARD_BYTES")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// ServeAddr returns the host:port the serve command binds,
// LOCALINFER_HOST, default 127.0.0.1:11535.
func ServeAddr() string {
	if s := Var("LOCALINFER_HOST"); s != "" {
		return s
	}
	return "127.0.0.1:11535"
}
