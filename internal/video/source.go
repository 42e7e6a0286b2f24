// Package video produces frame-paced encoded video from a capture backend,
// recovering from transient read failures and guaranteeing the device is
// released exactly once.
package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/camlink/internal/util"
)

var (
	// ErrCaptureInit means the capture device could not be opened. Fatal to
	// the current attempt.
	ErrCaptureInit = errors.New("capture init failed")

	// ErrFrameRead means a frame read failed and the recovery ladder was
	// exhausted. Fatal to the current attempt.
	ErrFrameRead = errors.New("frame read failed")
)

// defaultFrameRate is used when the backend reports no usable rate.
const defaultFrameRate = 30.0

// Frame is one encoded video frame with its presentation duration.
type Frame struct {
	Data     []byte
	Duration time.Duration
}

// Capture is the decode-backend boundary: it yields encoded frames and knows
// nothing about pacing or recovery.
type Capture interface {
	// ReadFrame returns the next encoded frame. For file backends an error
	// also signals end of stream.
	ReadFrame() ([]byte, error)
	// Reset rewinds to the start of the stream. Live backends return an
	// error; the Source never asks them to rewind.
	Reset() error
	FrameRate() float64
	// FrameCount is the total frame count, 0 for live backends.
	FrameCount() int
	Close() error
}

// Opener creates a fresh Capture. The Source keeps it around so it can
// reinitialize the device in place after a failed read.
type Opener func() (Capture, error)

// Source owns one open Capture and paces frame production to the backend's
// frame interval. Exactly one Source exists per connection attempt.
type Source struct {
	open Opener
	live bool

	mu  sync.Mutex // guards cap across NextFrame recovery and Release
	cap Capture

	interval time.Duration
	last     time.Time
	frames   int
	total    int
}

// Open initializes the capture backend and wraps it in a Source.
func Open(open Opener, live bool) (*Source, error) {
	c, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureInit, err)
	}
	s := &Source{open: open, live: live}
	s.adopt(c)
	util.LogInfo("video source ready: %.1f fps, %d total frames", 1/s.interval.Seconds(), s.total)
	return s, nil
}

// adopt installs a freshly opened capture and derives pacing parameters
// from it. Caller holds the mutex except during Open.
func (s *Source) adopt(c Capture) {
	rate := c.FrameRate()
	if rate <= 0 {
		rate = defaultFrameRate
	}
	s.interval = time.Duration(float64(time.Second) / rate)
	s.total = c.FrameCount()
	s.cap = c
}

// NextFrame returns the next encoded frame, suspending first so that frames
// are emitted no faster than the backend's frame interval. Frames are never
// dropped: the transport needs every timestamp for continuity.
func (s *Source) NextFrame(ctx context.Context) (Frame, error) {
	if !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Frame{}, ctx.Err()
			}
		}
	}

	data, err := s.read()
	if err != nil {
		return Frame{}, err
	}

	s.last = time.Now()
	s.frames++
	return Frame{Data: data, Duration: s.interval}, nil
}

// read performs one frame read, applying the per-backend recovery ladder:
// live sources get a single in-place reinitialization; file sources loop
// back to the start and only reinitialize if the rewind did not help.
func (s *Source) read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, fmt.Errorf("%w: source already released", ErrFrameRead)
	}

	data, err := s.cap.ReadFrame()
	if err == nil {
		return data, nil
	}

	if s.live {
		util.LogWarning("webcam read failed, reinitializing: %v", err)
		if err := s.reinitLocked(); err != nil {
			return nil, err
		}
		if data, err = s.cap.ReadFrame(); err != nil {
			return nil, fmt.Errorf("%w: after reinitialization: %v", ErrFrameRead, err)
		}
		return data, nil
	}

	// File source: treat the failure as end of stream and loop.
	util.LogInfo("video ended, restarting from the top")
	if resetErr := s.cap.Reset(); resetErr == nil {
		s.frames = 0
		if data, err = s.cap.ReadFrame(); err == nil {
			return data, nil
		}
	}

	util.LogWarning("restart did not recover the stream, reinitializing capture")
	if err := s.reinitLocked(); err != nil {
		return nil, err
	}
	s.frames = 0
	if data, err = s.cap.ReadFrame(); err != nil {
		return nil, fmt.Errorf("%w: after reinitialization: %v", ErrFrameRead, err)
	}
	return data, nil
}

// reinitLocked replaces the capture with a freshly opened one. Caller holds
// the mutex.
func (s *Source) reinitLocked() error {
	if err := s.cap.Close(); err != nil {
		util.LogDebug("closing failed capture: %v", err)
	}
	c, err := s.open()
	if err != nil {
		s.cap = nil
		return fmt.Errorf("%w: reinitialization: %v", ErrFrameRead, err)
	}
	s.adopt(c)
	return nil
}

// Release closes the capture handle if it is still open. Safe to call more
// than once and from a goroutine other than the one producing frames; the
// second call is a no-op.
func (s *Source) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return
	}
	if err := s.cap.Close(); err != nil {
		util.LogWarning("releasing capture: %v", err)
	}
	s.cap = nil

	if s.live {
		util.LogInfo("webcam released and turned off")
	} else {
		util.LogInfo("video capture released")
	}
}

// Frames is the number of frames emitted since the last loop restart.
func (s *Source) Frames() int { return s.frames }

// TotalFrames is the backend's total frame count, 0 for live sources.
func (s *Source) TotalFrames() int { return s.total }

// Interval is the target frame interval the source paces to.
func (s *Source) Interval() time.Duration { return s.interval }
