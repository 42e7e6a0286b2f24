package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide streaming counter.
var Stats = &stats{}

type stats struct {
	FramesSent     atomic.Int64 // cumulative encoded frames handed to the track
	BytesSent      atomic.Int64 // cumulative encoded bytes handed to the track
	CandidatesSent atomic.Int64 // local ICE candidates forwarded to the relay
	CandidatesRecv atomic.Int64 // remote ICE candidates applied to the engine
}

func (s *stats) AddFrame(n int) { s.FramesSent.Add(1); s.BytesSent.Add(int64(n)) }
func (s *stats) AddLocalCand()  { s.CandidatesSent.Add(1) }
func (s *stats) AddRemoteCand() { s.CandidatesRecv.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs streaming statistics
// every 10 seconds while frames are flowing. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevFrames, prevBytes int64
		for {
			select {
			case <-ticker.C:
				frames := Stats.FramesSent.Load()
				bytes := Stats.BytesSent.Load()

				fps := float64(frames-prevFrames) / 10.0
				rate := float64(bytes-prevBytes) / 10.0

				if frames != prevFrames {
					pterm.DefaultLogger.Info(formatStats(fps, rate))
				}

				prevFrames = frames
				prevBytes = bytes

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(fps, rate float64) string {
	return fmt.Sprintf("Video: %5.1f fps | %s/s | ICE: %d↑ %d↓",
		fps,
		formatBytes(rate),
		Stats.CandidatesSent.Load(),
		Stats.CandidatesRecv.Load(),
	)
}
