package session

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1ureka/camlink/internal/config"
	"github.com/1ureka/camlink/internal/video"
)

func testConfig() config.Config {
	return config.Config{
		STUNServers: config.DefaultSTUNServers,
		MaxRetries:  3,
		RetryDelay:  20 * time.Millisecond,
	}
}

// TestRetryBudgetExhausted verifies the terminal shape of the loop: three
// failing attempts, delays only between them, then ErrRetriesExhausted.
func TestRetryBudgetExhausted(t *testing.T) {
	c := New(testConfig())

	attempts := 0
	c.attempt = func(ctx context.Context) error {
		attempts++
		return errors.New("relay unreachable")
	}

	start := time.Now()
	err := c.Run(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("got %v, want ErrRetriesExhausted", err)
	}
	if attempts != 3 {
		t.Errorf("ran %d attempts, want 3", attempts)
	}
	// Two delays between three attempts, none after the last.
	if min := 2 * c.cfg.RetryDelay; elapsed < min {
		t.Errorf("loop finished in %s, want at least %s of retry delay", elapsed, min)
	}
}

// TestSuccessfulAttemptResetsBudget verifies an error-free attempt restores
// the full retry budget.
func TestSuccessfulAttemptResetsBudget(t *testing.T) {
	c := New(testConfig())

	// Two failures, one clean completion, then three more failures. If the
	// clean run did not reset the counter the loop would stop at attempt 4.
	script := []error{
		errors.New("fail 1"),
		errors.New("fail 2"),
		nil,
		errors.New("fail 3"),
		errors.New("fail 4"),
		errors.New("fail 5"),
	}
	attempts := 0
	c.attempt = func(ctx context.Context) error {
		err := script[attempts]
		attempts++
		return err
	}

	err := c.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("got %v, want ErrRetriesExhausted", err)
	}
	if attempts != len(script) {
		t.Errorf("ran %d attempts, want %d", attempts, len(script))
	}
}

// TestStopEndsRunCleanly verifies Stop (via context cancellation) exits the
// loop with nil instead of burning the retry budget.
func TestStopEndsRunCleanly(t *testing.T) {
	c := New(testConfig())
	c.attempt = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after stop, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// stopCapture is a minimal video.Capture for exercising Stop's release path.
type stopCapture struct{ closes int }

func (s *stopCapture) ReadFrame() ([]byte, error) { return []byte{0}, nil }
func (s *stopCapture) Reset() error               { return nil }
func (s *stopCapture) FrameRate() float64         { return 30 }
func (s *stopCapture) FrameCount() int            { return 0 }
func (s *stopCapture) Close() error               { s.closes++; return nil }

// TestStopReleasesSourceImmediately verifies the camera is turned off by the
// Stop call itself, not deferred to attempt cleanup, and only once.
func TestStopReleasesSourceImmediately(t *testing.T) {
	cap := &stopCapture{}
	src, err := video.Open(func() (video.Capture, error) { return cap, nil }, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := New(testConfig())
	c.setSource(src)

	c.Stop()
	if cap.closes != 1 {
		t.Fatalf("Close called %d times after Stop, want 1", cap.closes)
	}
	c.Stop()
	if cap.closes != 1 {
		t.Errorf("second Stop closed the device again, closes=%d", cap.closes)
	}
}

// writeIVF writes a minimal valid IVF header so a real file source can be
// opened without any media assets.
func writeIVF(t *testing.T) string {
	t.Helper()
	hdr := make([]byte, 32)
	copy(hdr[0:4], "DKIF")
	binary.LittleEndian.PutUint16(hdr[6:8], 32) // header size
	copy(hdr[8:12], "VP80")
	binary.LittleEndian.PutUint16(hdr[12:14], 640)
	binary.LittleEndian.PutUint16(hdr[14:16], 480)
	binary.LittleEndian.PutUint32(hdr[16:20], 30) // timebase denominator
	binary.LittleEndian.PutUint32(hdr[20:24], 1)  // timebase numerator

	path := filepath.Join(t.TempDir(), "test.ivf")
	if err := os.WriteFile(path, hdr, 0o644); err != nil {
		t.Fatalf("write IVF file: %v", err)
	}
	return path
}

// TestAttemptCleanupOnEarlyFailure verifies the cleanup guarantee through
// the real attempt wiring: whether the attempt dies at capture init or at
// signaling connect, it returns with the source released and cleared.
func TestAttemptCleanupOnEarlyFailure(t *testing.T) {
	t.Run("capture init", func(t *testing.T) {
		cfg := testConfig()
		cfg.VideoFile = filepath.Join(t.TempDir(), "missing.ivf")
		c := New(cfg)

		if err := c.runAttempt(context.Background()); !errors.Is(err, video.ErrCaptureInit) {
			t.Errorf("got %v, want ErrCaptureInit", err)
		}
	})

	t.Run("signaling connect", func(t *testing.T) {
		cfg := testConfig()
		cfg.VideoFile = writeIVF(t)
		cfg.SignalingURL = "ws://127.0.0.1:1" // nothing listens here
		cfg.ConnTimeout = time.Second
		c := New(cfg)

		if err := c.runAttempt(context.Background()); err == nil {
			t.Error("attempt succeeded against a dead relay")
		}

		c.mu.Lock()
		src := c.source
		c.mu.Unlock()
		if src != nil {
			t.Error("source still attached after attempt cleanup")
		}
	})
}

// TestStopFlagShortCircuitsRetry verifies a failure racing with Stop does
// not consume the retry delay or budget.
func TestStopFlagShortCircuitsRetry(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = 5 * time.Second // would dominate the test if slept
	c := New(cfg)

	c.attempt = func(ctx context.Context) error {
		c.Stop()
		return errors.New("interrupted mid-attempt")
	}

	start := time.Now()
	if err := c.Run(context.Background()); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run took %s, the retry delay was slept despite Stop", elapsed)
	}
}
