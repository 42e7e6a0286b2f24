package config

import (
	"testing"
	"time"
)

// clearEnv blanks every variable FromEnv reads so host settings cannot leak
// into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envSignalingURL, envUseWebcam, envWebcamIndex, envVideoFile,
		envMaxRetries, envRetryDelay, envConnectionTimeout, envDebug,
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.SignalingURL != DefaultSignalingURL {
		t.Errorf("SignalingURL = %q, want %q", cfg.SignalingURL, DefaultSignalingURL)
	}
	if !cfg.UseWebcam || cfg.WebcamIndex != 0 {
		t.Errorf("default source is webcam 0, got UseWebcam=%v index=%d", cfg.UseWebcam, cfg.WebcamIndex)
	}
	if cfg.VideoFile != DefaultVideoFile {
		t.Errorf("VideoFile = %q, want %q", cfg.VideoFile, DefaultVideoFile)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, DefaultMaxRetries)
	}
	if cfg.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %s, want %s", cfg.RetryDelay, DefaultRetryDelay)
	}
	if cfg.ConnTimeout != DefaultConnTimeout {
		t.Errorf("ConnTimeout = %s, want %s", cfg.ConnTimeout, DefaultConnTimeout)
	}
	if len(cfg.STUNServers) == 0 {
		t.Error("no STUN servers configured")
	}
	if cfg.Debug {
		t.Error("Debug defaults to true")
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envSignalingURL, "ws://relay.example:9000")
	t.Setenv(envUseWebcam, "false")
	t.Setenv(envWebcamIndex, "2")
	t.Setenv(envVideoFile, "clips/demo.ivf")
	t.Setenv(envMaxRetries, "7")
	t.Setenv(envRetryDelay, "1")
	t.Setenv(envConnectionTimeout, "10")
	t.Setenv(envDebug, "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.SignalingURL != "ws://relay.example:9000" {
		t.Errorf("SignalingURL = %q", cfg.SignalingURL)
	}
	if cfg.UseWebcam {
		t.Error("UseWebcam override ignored")
	}
	if cfg.WebcamIndex != 2 {
		t.Errorf("WebcamIndex = %d, want 2", cfg.WebcamIndex)
	}
	if cfg.VideoFile != "clips/demo.ivf" {
		t.Errorf("VideoFile = %q", cfg.VideoFile)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %s, want 1s", cfg.RetryDelay)
	}
	if cfg.ConnTimeout != 10*time.Second {
		t.Errorf("ConnTimeout = %s, want 10s", cfg.ConnTimeout)
	}
	if !cfg.Debug {
		t.Error("Debug override ignored")
	}
}

func TestWhitespaceTrimmed(t *testing.T) {
	clearEnv(t)
	t.Setenv(envSignalingURL, "  ws://relay.example:9000  ")
	t.Setenv(envMaxRetries, " 4 ")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.SignalingURL != "ws://relay.example:9000" {
		t.Errorf("SignalingURL = %q, whitespace not trimmed", cfg.SignalingURL)
	}
	if cfg.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.MaxRetries)
	}
}

func TestMalformedValuesFailStartup(t *testing.T) {
	cases := []struct{ key, value string }{
		{envMaxRetries, "three"},
		{envRetryDelay, "5s"}, // seconds as a bare integer, not a duration
		{envConnectionTimeout, "later"},
		{envWebcamIndex, "first"},
		{envUseWebcam, "yes please"},
		{envDebug, "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("%s=%q accepted, want error", tc.key, tc.value)
			}
		})
	}
}

func TestMaxRetriesLowerBound(t *testing.T) {
	for _, v := range []string{"0", "-1"} {
		clearEnv(t)
		t.Setenv(envMaxRetries, v)
		if _, err := FromEnv(); err == nil {
			t.Errorf("MAX_RETRIES=%s accepted, want error", v)
		}
	}
}
