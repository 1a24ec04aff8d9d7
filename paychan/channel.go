// Package paychan describes the on-ledger payment channel shape the plugin
// core consumes from the ledger client, and the validation rules spec.md
// §4.3 requires before a channel is adopted or refreshed.
package paychan

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MinSettleDelay is the platform minimum settle delay, in seconds, a
// channel must declare before it is safe to hold a claim against.
const MinSettleDelay = 3600

// Channel is the ledger-observed state of a payment channel, as returned by
// the ledger client's GetPaymentChannel (spec.md §6).
type Channel struct {
	ID                    string
	Amount                *uint256.Int // total escrowed, drops
	Balance               *uint256.Int // already claimed, drops
	PublicKey             string
	Destination           string
	SettleDelay           uint32
	CancelAfter           *uint64
	Expiration            *uint64
	SourceTag             *uint32
	PreviousTxID          string
	PreviousLedgerVersion uint64
}

// Clone returns a deep copy so callers may safely mutate the copy.
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(uint256.Int).Set(c.Amount)
	}
	if c.Balance != nil {
		clone.Balance = new(uint256.Int).Set(c.Balance)
	}
	if c.CancelAfter != nil {
		v := *c.CancelAfter
		clone.CancelAfter = &v
	}
	if c.Expiration != nil {
		v := *c.Expiration
		clone.Expiration = &v
	}
	if c.SourceTag != nil {
		v := *c.SourceTag
		clone.SourceTag = &v
	}
	return &clone
}

// Validate checks the invariants spec.md §4.3 requires of any channel before
// it may be adopted (incoming) or trusted after a refresh.
func Validate(ch *Channel, serverAddress string) error {
	if ch == nil {
		return fmt.Errorf("reject: channel not found")
	}
	if ch.SettleDelay < MinSettleDelay {
		return fmt.Errorf("reject: settle delay of incoming payment channel too low: %d < %d", ch.SettleDelay, MinSettleDelay)
	}
	if ch.CancelAfter != nil {
		return fmt.Errorf("reject: channel has a cancelAfter")
	}
	if ch.Expiration != nil {
		return fmt.Errorf("reject: channel closing")
	}
	if ch.Destination != serverAddress {
		return fmt.Errorf("reject: wrong destination: got %s want %s", ch.Destination, serverAddress)
	}
	return nil
}
