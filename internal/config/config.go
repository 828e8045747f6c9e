// Package config provides configuration helpers for go-wren commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default server configuration.
const (
	DefaultAddr          = ":8870"
	DefaultUsageInterval = 30 * time.Second
	DefaultReadyTimeout  = 10 * time.Second
)

// Config holds everything the bridge daemon needs at startup.
type Config struct {
	// Addr is the listen address for the device-facing server.
	Addr string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// DirectoryURL is the base URL of the user/device directory service.
	DirectoryURL string

	// AssetDir is the local directory holding playable audio assets.
	AssetDir string

	// UsageInterval is how often connected seconds are persisted.
	UsageInterval time.Duration

	// ReadyTimeout bounds the wait for a provider readiness acknowledgment.
	ReadyTimeout time.Duration

	// Provider credentials.
	OpenAIKey         string
	GeminiKey         string
	ElevenLabsKey     string
	ElevenLabsAgentID string
	QwenKey           string
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		Addr:          Env("WREN_ADDR", DefaultAddr),
		LogLevel:      Env("WREN_LOG_LEVEL", "info"),
		DirectoryURL:  EnvRequired("WREN_DIRECTORY_URL"),
		AssetDir:      Env("WREN_ASSET_DIR", "./assets"),
		UsageInterval: EnvDuration("WREN_USAGE_INTERVAL", DefaultUsageInterval),
		ReadyTimeout:  EnvDuration("WREN_READY_TIMEOUT", DefaultReadyTimeout),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		GeminiKey:         os.Getenv("GEMINI_API_KEY"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsAgentID: os.Getenv("ELEVENLABS_AGENT_ID"),
		QwenKey:           os.Getenv("QWEN_API_KEY"),
	}
}

// Env returns the value of the named environment variable.
// Falls back to the provided default if not set.
func Env(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// EnvRequired returns the value of the named environment variable.
// Exits with a usage hint if not set.
func EnvRequired(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", name)
		fmt.Fprintf(os.Stderr, "Usage: %s=... go run ./cmd/wrend\n", name)
		os.Exit(1)
	}
	return v
}

// EnvDuration returns the named environment variable parsed as a duration.
// Accepts either a time.Duration string ("45s") or a plain number of seconds.
func EnvDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
