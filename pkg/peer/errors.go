package peer

import (
	"github.com/pkg/errors"
)

var (
	ErrUnexpectedSDPType = errors.New("unexpected session description type")
	ErrNoDataChannel     = errors.New("offer carries no application media section")
	ErrNotNegotiated     = errors.New("local and remote descriptions are not both set")
	ErrClosed            = errors.New("peer connection closed")
)

// NegotiationError is returned when a description or candidate is rejected.
// The session that produced it must be discarded.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return "negotiation failed: " + e.Op + ": " + e.Err.Error()
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func negotiationError(op string, err error) error {
	return &NegotiationError{Op: op, Err: err}
}
