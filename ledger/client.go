// Package ledger declares the narrow interface the plugin core consumes from
// the XRP ledger client (spec.md §6) and the errors that distinguish
// transient, terminal, and rejected submissions.
package ledger

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"xrpchan/paychan"
)

// ErrEntryNotFound means the channel no longer exists on the ledger
// (spec.md §4.2 LOADING_CHANNEL: "channel disappeared from ledger").
var ErrEntryNotFound = errors.New("ledger: entryNotFound")

// ErrTransient marks a timeout or other retriable failure.
var ErrTransient = errors.New("ledger: transient failure")

// TerminalError wraps a non-retriable submission failure such as
// temMALFORMED.
type TerminalError struct {
	EngineResult string
}

func (e *TerminalError) Error() string {
	return "ledger: terminal failure: " + e.EngineResult
}

// ChannelCreateRequest describes a preparePaymentChannelCreate call.
type ChannelCreateRequest struct {
	Destination string
	Amount      *uint256.Int // drops
	SettleDelay uint32
	PublicKey   string
	SourceTag   uint32
}

// ChannelClaimRequest describes a preparePaymentChannelClaim call.
type ChannelClaimRequest struct {
	ChannelID string
	Balance   *uint256.Int // drops, cumulative
	Signature string       // hex, uppercased for a close
	PublicKey string
	Close     bool
	SourceTag uint32
}

// ChannelFundRequest describes a preparePaymentChannelFund call: adding more
// escrow to an already-open channel without changing its id, so claims
// already signed against it stay valid.
type ChannelFundRequest struct {
	ChannelID string
	Amount    *uint256.Int // additional drops escrowed
	SourceTag uint32
}

// TxResult is the validated transaction event the ledger client returns once
// a submission is confirmed.
type TxResult struct {
	Hash         string
	Account      string
	SourceTag    uint32
	EngineResult string
	ChannelID    string // populated for PaymentChannelCreate on success
}

// AccountEvent is a subscription notification from the ledger client.
type AccountEvent struct {
	Type      string
	ChannelID string
}

// Client is the external ledger collaborator (spec.md §1, §6). Implementations
// submit transactions, subscribe to account events, query channels, and
// report the current network fee.
type Client interface {
	Connect(ctx context.Context) error
	SubscribeAccount(ctx context.Context, address string) (<-chan AccountEvent, error)
	GetPaymentChannel(ctx context.Context, channelID string) (*paychan.Channel, error)
	GetFeeDrops(ctx context.Context) (*uint256.Int, error)
	PreparePaymentChannelCreate(ctx context.Context, req ChannelCreateRequest) (*TxResult, error)
	PreparePaymentChannelClaim(ctx context.Context, req ChannelClaimRequest) (*TxResult, error)
	PreparePaymentChannelFund(ctx context.Context, req ChannelFundRequest) (*TxResult, error)
}
