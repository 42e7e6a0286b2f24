// Camlink is a single-peer WebRTC video sender.
//
// It owns one outbound video source (webcam or looping file), lets a
// signaling relay pair it with one viewer at a time, and streams the video
// over a WebRTC peer connection. Failed sessions are retried a bounded
// number of times, and the camera is released on every exit path.
//
// Configuration is environment-only: SIGNALING_URL, USE_WEBCAM,
// WEBCAM_INDEX, VIDEO_FILE, MAX_RETRIES, RETRY_DELAY, CONNECTION_TIMEOUT,
// CAMLINK_DEBUG.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/util"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// run carries the real main so deferred cleanup still executes before the
// process exits with a status code.
func run() int {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		util.LogError("invalid configuration: %v", err)
		return 1
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	util.LogInfo("camlink %s, signaling relay: %s", version, cfg.SignalingURL)
	util.StartStatsReporter(ctx)

	ctrl := session.New(cfg)
	// Final backstop: the camera must be off before process exit, whatever
	// path got us here.
	defer ctrl.Stop()

	if err := ctrl.Run(ctx); err != nil {
		if errors.Is(err, session.ErrRetriesExhausted) {
			util.LogError("giving up: %v", err)
		} else {
			util.LogError("unexpected error: %v", err)
		}
		return 1
	}

	util.LogInfo("camlink stopped")
	return 0
}
