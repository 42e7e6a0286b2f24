// Package config loads the immutable runtime configuration from the
// environment. The snapshot is read once at startup and never mutated.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envSignalingURL      = "SIGNALING_URL"
	envUseWebcam         = "USE_WEBCAM"
	envWebcamIndex       = "WEBCAM_INDEX"
	envVideoFile         = "VIDEO_FILE"
	envMaxRetries        = "MAX_RETRIES"
	envRetryDelay        = "RETRY_DELAY"
	envConnectionTimeout = "CONNECTION_TIMEOUT"
	envDebug             = "CAMLINK_DEBUG"

	DefaultSignalingURL = "ws://localhost:8080"
	DefaultVideoFile    = "media/test-video.ivf"
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 5 * time.Second
	DefaultConnTimeout  = 30 * time.Second
)

// STUN servers for ICE candidate gathering. No TURN: the sender only does
// direct P2P connectivity.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// Config is the immutable startup snapshot.
type Config struct {
	SignalingURL string
	UseWebcam    bool
	WebcamIndex  int
	VideoFile    string // used when UseWebcam is false
	STUNServers  []string
	MaxRetries   int
	RetryDelay   time.Duration
	ConnTimeout  time.Duration // signaling connect timeout
	Debug        bool
}

// FromEnv builds a Config from the process environment. Unset variables fall
// back to defaults; malformed values fail startup rather than being silently
// replaced.
func FromEnv() (Config, error) {
	cfg := Config{
		SignalingURL: envOrDefault(envSignalingURL, DefaultSignalingURL),
		VideoFile:    envOrDefault(envVideoFile, DefaultVideoFile),
		STUNServers:  DefaultSTUNServers,
	}

	var err error
	if cfg.UseWebcam, err = envBoolOrDefault(envUseWebcam, true); err != nil {
		return Config{}, err
	}
	if cfg.WebcamIndex, err = envIntOrDefault(envWebcamIndex, 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries, err = envIntOrDefault(envMaxRetries, DefaultMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = envBoolOrDefault(envDebug, false); err != nil {
		return Config{}, err
	}

	retrySecs, err := envIntOrDefault(envRetryDelay, int(DefaultRetryDelay/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.RetryDelay = time.Duration(retrySecs) * time.Second

	timeoutSecs, err := envIntOrDefault(envConnectionTimeout, int(DefaultConnTimeout/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.ConnTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.MaxRetries < 1 {
		return Config{}, fmt.Errorf("%s must be at least 1, got %d", envMaxRetries, cfg.MaxRetries)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if raw, ok := os.LookupEnv(key); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, raw, err)
	}
	return v, nil
}
