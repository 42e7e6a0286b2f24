package session

import "errors"

var (
	// ErrNegotiation means the offer/answer sequence could not be completed.
	// Fatal to the current attempt.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrPeerFailed means the engine reported the failed connection state.
	// Fatal to the current attempt.
	ErrPeerFailed = errors.New("peer connection failed")

	// ErrRetriesExhausted is returned by Controller.Run once the retry
	// budget is spent. It causes a non-zero process exit.
	ErrRetriesExhausted = errors.New("maximum retries reached")
)
