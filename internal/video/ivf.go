package video

import (
	"fmt"
	"io"
	"os"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// OpenFile opens a looping file source backed by an IVF container.
func OpenFile(path string) (*Source, error) {
	return Open(func() (Capture, error) { return openIVF(path) }, false)
}

// fileCapture reads VP8 frames out of an IVF file. Rewinding seeks the file
// back to byte zero and re-parses the header.
type fileCapture struct {
	file   *os.File
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
}

func openIVF(path string) (*fileCapture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse IVF header of %s: %w", path, err)
	}

	return &fileCapture{file: f, reader: reader, header: header}, nil
}

func (c *fileCapture) ReadFrame() ([]byte, error) {
	frame, _, err := c.reader.ParseNextFrame()
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *fileCapture) Reset() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind video file: %w", err)
	}
	reader, header, err := ivfreader.NewWith(c.file)
	if err != nil {
		return fmt.Errorf("re-parse IVF header: %w", err)
	}
	c.reader = reader
	c.header = header
	return nil
}

func (c *fileCapture) FrameRate() float64 {
	if c.header.TimebaseNumerator == 0 {
		return 0
	}
	return float64(c.header.TimebaseDenominator) / float64(c.header.TimebaseNumerator)
}

func (c *fileCapture) FrameCount() int {
	return int(c.header.NumFrames)
}

func (c *fileCapture) Close() error {
	return c.file.Close()
}
