package video

import (
	"errors"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers the camera adapter
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
)

const (
	webcamWidth     = 640
	webcamHeight    = 480
	webcamFrameRate = 30
	webcamBitRate   = 1_000_000
)

// OpenWebcam opens a live source backed by the index-th camera device.
func OpenWebcam(index int) (*Source, error) {
	return Open(func() (Capture, error) { return openWebcam(index) }, true)
}

// webcamCapture pulls VP8-encoded frames from a mediadevices camera track.
type webcamCapture struct {
	stream mediadevices.MediaStream
	reader mediadevices.EncodedReadCloser
}

func openWebcam(index int) (*webcamCapture, error) {
	var cameras []mediadevices.MediaDeviceInfo
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind == mediadevices.VideoInput {
			cameras = append(cameras, info)
		}
	}
	if index < 0 || index >= len(cameras) {
		return nil, fmt.Errorf("no webcam at index %d (%d available)", index, len(cameras))
	}
	device := cameras[index]

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("create VP8 params: %w", err)
	}
	vpxParams.BitRate = webcamBitRate
	vpxParams.KeyFrameInterval = 2 * webcamFrameRate

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(device.DeviceID)
			c.Width = prop.Int(webcamWidth)
			c.Height = prop.Int(webcamHeight)
			c.FrameRate = prop.Float(webcamFrameRate)
			c.FrameFormat = prop.FrameFormat(frame.FormatYUY2)
		},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("open webcam %d: %w", index, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		closeTracks(stream)
		return nil, fmt.Errorf("webcam %d produced no video track", index)
	}

	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeTracks(stream)
		return nil, fmt.Errorf("webcam %d produced an unexpected track type", index)
	}

	reader, err := videoTrack.NewEncodedReader(vpxParams.RTPCodec().MimeType)
	if err != nil {
		closeTracks(stream)
		return nil, fmt.Errorf("create encoded reader: %w", err)
	}

	return &webcamCapture{stream: stream, reader: reader}, nil
}

func (c *webcamCapture) ReadFrame() ([]byte, error) {
	buf, release, err := c.reader.Read()
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	release()
	return data, nil
}

func (c *webcamCapture) Reset() error {
	return errors.New("live source is not seekable")
}

func (c *webcamCapture) FrameRate() float64 { return webcamFrameRate }

func (c *webcamCapture) FrameCount() int { return 0 }

func (c *webcamCapture) Close() error {
	err := c.reader.Close()
	closeTracks(c.stream)
	return err
}

func closeTracks(stream mediadevices.MediaStream) {
	for _, t := range stream.GetTracks() {
		t.Close()
	}
}
