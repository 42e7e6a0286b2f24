// Package signaling owns the WebSocket connection to the relay and the JSON
// message protocol spoken over it.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	// Sender → relay.
	MsgTypeRole   MessageType = "role"
	MsgTypeAnswer MessageType = "answer"

	// Relay → sender.
	MsgTypeSenderConnected    MessageType = "sender-connected"
	MsgTypeSenderDisconnected MessageType = "sender-disconnected"
	MsgTypeOffer              MessageType = "offer"

	// Both directions.
	MsgTypeCandidate MessageType = "ice-candidate"
)

// RoleSender is the role announced to the relay right after connecting.
const RoleSender = "sender"

// SessionDescription carries an SDP blob and its type ("offer"/"answer").
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// CandidatePayload is the candidate body of an ice-candidate message.
// Candidate is nil when the peer signals end-of-gathering.
type CandidatePayload struct {
	Candidate     *string `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// Message is the JSON structure exchanged with the relay. Exactly one of the
// payload fields is set, selected by Type. An ice-candidate message may carry
// a nil Candidate: the whole payload being null also means end-of-gathering.
type Message struct {
	Type      MessageType         `json:"type"`
	Role      string              `json:"role,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *CandidatePayload   `json:"candidate,omitempty"`
}

// NewAnswer builds an outbound answer message.
func NewAnswer(sdp string) Message {
	return Message{
		Type:   MsgTypeAnswer,
		Answer: &SessionDescription{SDP: sdp, Type: "answer"},
	}
}

// NewCandidate builds an outbound ice-candidate message for a locally
// gathered candidate.
func NewCandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16) Message {
	return Message{
		Type: MsgTypeCandidate,
		Candidate: &CandidatePayload{
			Candidate:     &candidate,
			SDPMid:        sdpMid,
			SDPMLineIndex: sdpMLineIndex,
		},
	}
}
