// Package engine wraps a single pion PeerConnection and its outbound video
// track behind the small surface the negotiation layer needs. SDP
// generation, ICE gathering and the media transport all live below this
// boundary.
package engine

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/camlink/internal/util"
)

// Observer is the fixed set of callback slots the engine exposes. The
// negotiation state machine implements it; each slot may be invoked from
// pion's internal goroutines.
type Observer interface {
	ConnectionStateChanged(webrtc.PeerConnectionState)
	ICEConnectionStateChanged(webrtc.ICEConnectionState)
	ICEGatheringStateChanged(webrtc.ICEGatheringState)
	// LocalCandidateProduced receives each locally gathered candidate.
	// A nil candidate signals the end of gathering.
	LocalCandidateProduced(*webrtc.ICECandidate)
}

// Peer owns one PeerConnection and one VP8 sample track for the duration of
// one connection attempt. It is closed at attempt end regardless of outcome.
type Peer struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
}

// NewPeer creates a PeerConnection configured with the given STUN servers
// and attaches the outbound video track.
func NewPeer(stunServers []string) (*Peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video",
		"camlink-"+uuid.NewString(),
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video track: %w", err)
	}

	// Drain RTCP from the viewer so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				if err != io.EOF {
					util.LogDebug("rtcp drain stopped: %v", err)
				}
				return
			}
		}
	}()

	return &Peer{pc: pc, track: track}, nil
}

// Subscribe wires the observer into the underlying PeerConnection. Call it
// before signaling starts so no state transition is missed.
func (p *Peer) Subscribe(o Observer) {
	p.pc.OnConnectionStateChange(o.ConnectionStateChanged)
	p.pc.OnICEConnectionStateChange(o.ICEConnectionStateChanged)
	p.pc.OnICEGatheringStateChange(o.ICEGatheringStateChanged)
	p.pc.OnICECandidate(o.LocalCandidateProduced)
}

// SetRemoteOffer applies the viewer's offer as the remote description.
func (p *Peer) SetRemoteOffer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

// Answer generates an answer for the current remote offer and applies it as
// the local description.
func (p *Peer) Answer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

// AddRemoteCandidate adds a remote ICE candidate received through signaling.
// An init with an empty candidate string is pion's end-of-candidates marker.
func (p *Peer) AddRemoteCandidate(init webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(init)
}

// WriteSample hands one encoded video frame to the outbound track.
func (p *Peer) WriteSample(sample media.Sample) error {
	return p.track.WriteSample(sample)
}

// Close shuts down the PeerConnection. Safe to call more than once.
func (p *Peer) Close() error {
	return p.pc.Close()
}
