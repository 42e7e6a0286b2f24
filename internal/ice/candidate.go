// Package ice parses and serializes the textual ICE candidate representation
// exchanged through the signaling relay.
//
// A candidate line looks like:
//
//	candidate:3208550620 1 udp 2113937152 192.168.1.100 58291 typ host generation 0 ufrag 4WUP
//
// Only the eight mandatory tokens are interpreted; extension pairs
// (generation, ufrag, network-cost, …) are ignored.
package ice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by every parse failure. A malformed candidate is
// never fatal to a session: callers skip it and keep going.
var ErrMalformed = errors.New("malformed ICE candidate")

// Protocol is the candidate transport protocol.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// CandidateType is the ICE candidate type (host, srflx, prflx, relay).
type CandidateType string

const (
	TypeHost            CandidateType = "host"
	TypeServerReflexive CandidateType = "srflx"
	TypePeerReflexive   CandidateType = "prflx"
	TypeRelay           CandidateType = "relay"
)

const prefix = "candidate:"

// Descriptor holds the structured fields of one candidate line. It is
// transient: built from a parsed string, handed to the engine, not retained.
type Descriptor struct {
	Foundation string
	Component  int
	Protocol   Protocol
	Priority   uint32
	IP         string
	Port       uint16
	Typ        CandidateType
}

// Parse splits a candidate line into its structured fields.
//
// The line must carry at least 8 whitespace-separated tokens; token 0 starts
// with the "candidate:" prefix; tokens 1, 3 and 5 must be integers. Token 6
// is conventionally the literal "typ" but is not validated strictly, matching
// what browsers actually emit.
func Parse(s string) (Descriptor, error) {
	parts := strings.Fields(s)
	if len(parts) < 8 {
		return Descriptor{}, fmt.Errorf("%w: %d tokens, need at least 8", ErrMalformed, len(parts))
	}

	foundation := strings.TrimPrefix(parts[0], prefix)
	if foundation == parts[0] {
		return Descriptor{}, fmt.Errorf("%w: missing %q prefix", ErrMalformed, prefix)
	}

	component, err := strconv.Atoi(parts[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: component %q: %v", ErrMalformed, parts[1], err)
	}

	priority, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: priority %q: %v", ErrMalformed, parts[3], err)
	}

	port, err := strconv.ParseUint(parts[5], 10, 16)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: port %q: %v", ErrMalformed, parts[5], err)
	}

	return Descriptor{
		Foundation: foundation,
		Component:  component,
		Protocol:   Protocol(strings.ToLower(parts[2])),
		Priority:   uint32(priority),
		IP:         parts[4],
		Port:       uint16(port),
		Typ:        CandidateType(parts[7]),
	}, nil
}

// String serializes the eight mandatory tokens back into candidate-line form.
// Extension pairs seen at parse time are not preserved.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s%s %d %s %d %s %d typ %s",
		prefix, d.Foundation, d.Component, d.Protocol, d.Priority, d.IP, d.Port, d.Typ)
}
