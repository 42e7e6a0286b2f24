package session

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camlink/internal/ice"
	"github.com/1ureka/camlink/internal/signaling"
	"github.com/1ureka/camlink/internal/util"
)

// state tracks where the negotiator is inside one connection attempt.
type state int

const (
	stateAwaitingOffer state = iota
	stateAnsweringOffer
	stateConnected
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaitingOffer:
		return "awaiting-offer"
	case stateAnsweringOffer:
		return "answering-offer"
	case stateConnected:
		return "connected"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// answerEngine is the slice of the engine the negotiator drives.
type answerEngine interface {
	SetRemoteOffer(sdp string) error
	Answer() (webrtc.SessionDescription, error)
	AddRemoteCandidate(webrtc.ICECandidateInit) error
}

// messageSender sends signaling messages back to the relay.
type messageSender interface {
	Send(signaling.Message) error
}

// releaser releases the video source; repeat calls must be no-ops.
type releaser interface {
	Release()
}

// eventKind tags the engine callback funneled into the dispatch loop.
type eventKind int

const (
	evConnState eventKind = iota
	evICEState
	evGatherState
	evCandidate
)

type event struct {
	kind        eventKind
	connState   webrtc.PeerConnectionState
	iceState    webrtc.ICEConnectionState
	gatherState webrtc.ICEGatheringState
	candidate   *webrtc.ICECandidate
}

// negotiator drives exactly one connection attempt: remote offer → local
// answer, bidirectional ICE candidate exchange, and reaction to engine
// state transitions. All handling happens on the single run loop, so
// signaling messages and engine events never execute concurrently.
type negotiator struct {
	eng    answerEngine
	sig    messageSender
	source releaser

	state     state
	connected bool

	events chan event
	done   chan struct{}
}

func newNegotiator(eng answerEngine, sig messageSender, source releaser) *negotiator {
	return &negotiator{
		eng:    eng,
		sig:    sig,
		source: source,
		state:  stateAwaitingOffer,
		events: make(chan event, 32),
		done:   make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Engine observer, invoked from pion goroutines, funneled into the loop
// ---------------------------------------------------------------------------

func (n *negotiator) ConnectionStateChanged(s webrtc.PeerConnectionState) {
	n.push(event{kind: evConnState, connState: s})
}

func (n *negotiator) ICEConnectionStateChanged(s webrtc.ICEConnectionState) {
	n.push(event{kind: evICEState, iceState: s})
}

func (n *negotiator) ICEGatheringStateChanged(s webrtc.ICEGatheringState) {
	n.push(event{kind: evGatherState, gatherState: s})
}

func (n *negotiator) LocalCandidateProduced(c *webrtc.ICECandidate) {
	n.push(event{kind: evCandidate, candidate: c})
}

func (n *negotiator) push(ev event) {
	select {
	case n.events <- ev:
	case <-n.done:
		// Attempt already over; late engine callbacks are dropped.
	}
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run processes signaling messages and engine events in arrival order until
// a fatal condition or cancellation ends the attempt. fatal carries errors
// raised outside the loop (the frame pump).
func (n *negotiator) run(ctx context.Context, msgs <-chan signaling.Message, readErr <-chan error, fatal <-chan error) error {
	defer close(n.done)
	defer n.setState(stateClosed)

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				// Read loop ended; its error follows on readErr.
				select {
				case err := <-readErr:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := n.handleMessage(msg); err != nil {
				return err
			}

		case ev := <-n.events:
			if err := n.handleEvent(ev); err != nil {
				return err
			}

		case err := <-readErr:
			return err

		case err := <-fatal:
			return err

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *negotiator) setState(s state) {
	if n.state == s {
		return
	}
	util.LogDebug("negotiation state: %s → %s", n.state, s)
	n.state = s
}

// ---------------------------------------------------------------------------
// Signaling messages
// ---------------------------------------------------------------------------

func (n *negotiator) handleMessage(msg signaling.Message) error {
	switch msg.Type {
	case signaling.MsgTypeSenderConnected:
		util.LogInfo("relay broadcast our presence to viewers")

	case signaling.MsgTypeSenderDisconnected:
		util.LogWarning("received sender-disconnected while acting as sender")

	case signaling.MsgTypeOffer:
		return n.handleOffer(msg.Offer)

	case signaling.MsgTypeCandidate:
		n.handleRemoteCandidate(msg.Candidate)

	default:
		util.LogDebug("ignoring signaling message type %q", msg.Type)
	}
	return nil
}

// handleOffer runs the answer sequence. Any failure here is fatal to the
// attempt.
func (n *negotiator) handleOffer(offer *signaling.SessionDescription) error {
	if offer == nil || offer.SDP == "" || offer.Type == "" {
		return fmt.Errorf("%w: offer missing sdp or type", ErrNegotiation)
	}

	util.LogInfo("processing offer from viewer")
	n.setState(stateAnsweringOffer)

	if err := n.eng.SetRemoteOffer(offer.SDP); err != nil {
		return fmt.Errorf("%w: set remote description: %v", ErrNegotiation, err)
	}

	answer, err := n.eng.Answer()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	if err := n.sig.Send(signaling.NewAnswer(answer.SDP)); err != nil {
		return err
	}
	util.LogInfo("sent answer to viewer")
	return nil
}

// handleRemoteCandidate validates and applies one remote candidate. A
// malformed candidate is skipped; it never aborts the attempt.
func (n *negotiator) handleRemoteCandidate(payload *signaling.CandidatePayload) {
	if payload == nil || payload.Candidate == nil {
		// End-of-candidates marker: hand the engine an empty init, never
		// a parse attempt.
		if err := n.eng.AddRemoteCandidate(webrtc.ICECandidateInit{}); err != nil {
			util.LogWarning("end-of-candidates marker rejected: %v", err)
		}
		return
	}

	raw := *payload.Candidate
	desc, err := ice.Parse(raw)
	if err != nil {
		util.LogWarning("skipping malformed candidate: %v", err)
		return
	}

	init := webrtc.ICECandidateInit{
		Candidate:     raw,
		SDPMid:        payload.SDPMid,
		SDPMLineIndex: payload.SDPMLineIndex,
	}
	if err := n.eng.AddRemoteCandidate(init); err != nil {
		util.LogWarning("add remote candidate %s:%d: %v", desc.IP, desc.Port, err)
		return
	}
	util.Stats.AddRemoteCand()
	util.LogDebug("added remote candidate %s:%d (%s)", desc.IP, desc.Port, desc.Typ)
}

// ---------------------------------------------------------------------------
// Engine events
// ---------------------------------------------------------------------------

func (n *negotiator) handleEvent(ev event) error {
	switch ev.kind {
	case evCandidate:
		if ev.candidate == nil {
			// End of gathering; the engine signals this to the remote side
			// itself, so no message is synthesized.
			util.LogDebug("local candidate gathering complete")
			return nil
		}
		c := ev.candidate.ToJSON()
		if err := n.sig.Send(signaling.NewCandidate(c.Candidate, c.SDPMid, c.SDPMLineIndex)); err != nil {
			return err
		}
		util.Stats.AddLocalCand()

	case evConnState:
		util.LogInfo("connection state: %s", ev.connState)
		switch ev.connState {
		case webrtc.PeerConnectionStateConnected:
			n.setState(stateConnected)
			n.connected = true
			util.LogInfo("WebRTC connection established, video is streaming")
		case webrtc.PeerConnectionStateFailed:
			n.source.Release()
			return ErrPeerFailed
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			n.source.Release()
			return fmt.Errorf("peer connection %s", ev.connState)
		}

	case evICEState:
		util.LogInfo("ICE connection state: %s", ev.iceState)
		switch ev.iceState {
		case webrtc.ICEConnectionStateFailed,
			webrtc.ICEConnectionStateDisconnected,
			webrtc.ICEConnectionStateClosed:
			// Turn the camera off as soon as the path dies; the connection
			// state callback decides the attempt's fate. Release tolerates
			// being hit from both callbacks.
			n.source.Release()
		}

	case evGatherState:
		util.LogDebug("ICE gathering state: %s", ev.gatherState)
	}
	return nil
}
