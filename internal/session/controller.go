// Package session orchestrates the sender lifecycle: the bounded retry
// loop, per-attempt wiring of video source, signaling client and peer
// connection, and the guarantee that the camera is released on every exit
// path.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/engine"
	"github.com/1ureka/camlink/internal/signaling"
	"github.com/1ureka/camlink/internal/util"
	"github.com/1ureka/camlink/internal/video"
)

// Controller owns the session state: the running flag, the retry budget and
// the current attempt's video source.
type Controller struct {
	cfg config.Config

	running    atomic.Bool
	retryCount int

	mu     sync.Mutex // guards source
	source *video.Source

	// attempt is swapped out by tests to exercise the retry loop alone.
	attempt func(ctx context.Context) error
}

// New creates a Controller for the given configuration.
func New(cfg config.Config) *Controller {
	c := &Controller{cfg: cfg}
	c.attempt = c.runAttempt
	return c
}

// Run executes connection attempts until the retry budget is exhausted or
// Stop is called. Cancelling ctx is equivalent to calling Stop. A clean
// stop returns nil; spending the budget returns ErrRetriesExhausted.
func (c *Controller) Run(ctx context.Context) error {
	c.running.Store(true)
	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	for c.running.Load() && c.retryCount < c.cfg.MaxRetries {
		err := c.attempt(ctx)
		if err == nil {
			// The attempt ran to completion without error; the budget
			// starts over for the next viewer.
			c.retryCount = 0
			continue
		}

		if !c.running.Load() || errors.Is(err, context.Canceled) {
			util.LogInfo("shutdown requested, stopping")
			break
		}

		util.LogError("streaming attempt failed: %v", err)
		c.retryCount++

		if c.retryCount >= c.cfg.MaxRetries {
			util.LogError("maximum retries reached, stopping")
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.retryCount, err)
		}

		util.LogInfo("retrying in %s (attempt %d/%d)", c.cfg.RetryDelay, c.retryCount, c.cfg.MaxRetries)
		// Plain sleep on purpose: Stop already turned the camera off
		// synchronously, only the loop exit is deferred until the delay
		// elapses.
		time.Sleep(c.cfg.RetryDelay)
	}
	return nil
}

// Stop clears the running flag and synchronously releases the current
// attempt's video source, so the camera light goes out immediately even if
// cleanup of the rest of the attempt is still in flight. Safe to call more
// than once.
func (c *Controller) Stop() {
	c.running.Store(false)

	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	if src != nil {
		src.Release()
	}
}

func (c *Controller) setSource(src *video.Source) {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
}

// runAttempt wires up one attempt and blocks until it ends. Cleanup runs on
// every exit path; Release and Close are idempotent, so a racing Stop is
// harmless.
func (c *Controller) runAttempt(ctx context.Context) error {
	util.LogInfo("starting streaming attempt")

	src, err := c.openSource()
	if err != nil {
		return err
	}
	c.setSource(src)

	var (
		peer   *engine.Peer
		client *signaling.Client
	)
	defer func() {
		src.Release()
		if peer != nil {
			if cerr := peer.Close(); cerr != nil {
				util.LogWarning("closing peer connection: %v", cerr)
			}
		}
		if client != nil {
			client.Close()
		}
		c.setSource(nil)
		util.LogDebug("attempt cleanup completed")
	}()

	peer, err = engine.NewPeer(c.cfg.STUNServers)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	client, err = signaling.Dial(ctx, c.cfg.SignalingURL, c.cfg.ConnTimeout)
	if err != nil {
		return err
	}

	neg := newNegotiator(peer, client, src)
	peer.Subscribe(neg)

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Frame pump: paced source → outbound track. Samples written before the
	// track is bound are dropped by the engine, which is fine.
	pumpErr := make(chan error, 1)
	go func() {
		if err := pumpFrames(attemptCtx, src, peer); err != nil {
			pumpErr <- err
		}
	}()

	msgs, readErr := client.Listen(attemptCtx)
	return neg.run(attemptCtx, msgs, readErr, pumpErr)
}

func (c *Controller) openSource() (*video.Source, error) {
	if c.cfg.UseWebcam {
		util.LogInfo("using webcam at index %d", c.cfg.WebcamIndex)
		return video.OpenWebcam(c.cfg.WebcamIndex)
	}
	util.LogInfo("using video file: %s", c.cfg.VideoFile)
	return video.OpenFile(c.cfg.VideoFile)
}

// pumpFrames feeds paced frames into the peer's track until the attempt
// ends. Cancellation is a clean exit; everything else is fatal.
func pumpFrames(ctx context.Context, src *video.Source, peer *engine.Peer) error {
	for {
		frame, err := src.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := peer.WriteSample(media.Sample{Data: frame.Data, Duration: frame.Duration}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
		util.Stats.AddFrame(len(frame.Data))
	}
}
