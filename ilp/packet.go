// Package ilp declares the narrow Interledger packet shapes and codec the
// plugin core consumes (spec.md §6), plus the ILDCP responder used for the
// peer.config short-circuit (spec.md §4.4 item 5).
package ilp

import (
	"time"

	"github.com/holiman/uint256"
)

// Prepare is an ILP PREPARE packet.
type Prepare struct {
	Destination         string
	Amount              *uint256.Int
	ExpiresAt           time.Time
	ExecutionCondition  [32]byte
	Data                []byte
}

// Fulfill is an ILP FULFILL packet.
type Fulfill struct {
	FulfillmentPreimage [32]byte
	Data                []byte
}

// Reject is an ILP REJECT packet.
type Reject struct {
	Code        string
	Message     string
	TriggeredBy string
	Data        []byte
}

// Codec (de)serializes ILP packets to and from their wire encoding. It is an
// external collaborator (spec.md §6); the core never inspects the wire
// bytes directly.
type Codec interface {
	DecodePrepare(raw []byte) (*Prepare, error)
	EncodeFulfill(f *Fulfill) ([]byte, error)
	EncodeReject(r *Reject) ([]byte, error)
}

// DefaultNonPrepareDeadline is the deadline non-PREPARE sub-protocol data
// races against when the packet carries no expiry of its own (spec.md §4.4
// item 5, §5).
const DefaultNonPrepareDeadline = 30 * time.Second

// PeerConfigDestination is the reserved ILP address that short-circuits to
// an ILDCP response instead of reaching the data handler.
const PeerConfigDestination = "peer.config"
