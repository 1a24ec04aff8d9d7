// Package account implements the per-peer account: persisted balances, the
// last claim, channel identifiers, and the in-memory readiness state machine
// (spec.md §3, §4.2).
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"xrpchan/ledger"
	"xrpchan/observability/logging"
	"xrpchan/paychan"
	"xrpchan/store"
	"xrpchan/xrpamount"
)

// Claim is the largest validly signed claim ever received for an account's
// incoming channel (spec.md §3). Amount is a decimal string in the account's
// base currency unit so it round-trips exactly through JSON and the store.
type Claim struct {
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

// AmountUint256 parses Amount, treating an empty claim as zero.
func (c Claim) AmountUint256() (*uint256.Int, error) {
	return xrpamount.FromString(c.Amount)
}

// Deps are the collaborators an Account needs to drive its state machine.
// They are shared across every account the orchestrator manages.
type Deps struct {
	Store         *store.Wrapper
	Ledger        ledger.Client
	ServerAddress string
	ServerSecret  string
	CurrencyScale uint8
	Logger        *slog.Logger
	Now           func() time.Time
}

// Account is the per-peer state described by spec.md §3.
type Account struct {
	mu sync.Mutex

	ID   string
	deps Deps

	IncomingChannel string
	IncomingPaychan *paychan.Channel

	ClientChannel        string
	ClientPaychan        *paychan.Channel
	ClientPeerXRPAddress string // the peer's XRP address the client channel pays out to

	IncomingClaim     Claim
	LastClaimedAmount *uint256.Int // drops

	Prepared        *uint256.Int // base units
	OutgoingBalance *uint256.Int // base units
	OwedBalance     *uint256.Int // base units

	Blocked     bool
	BlockReason string

	state State

	funding bool

	// claimFailureCount is a purely observational, non-persisted count of
	// consecutive ledger failures the auto-claim loop has hit for this
	// account; it resets on the next successful claim.
	claimFailureCount int

	// claimTimerCancel stops the auto-claim timer (spec.md §4.8); wired by
	// the orchestrator/watcher when the account reaches READY.
	claimTimerCancel func()
}

// New constructs an account in its initial state. Callers must call Connect
// before any other operation.
func New(id string, deps Deps) *Account {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Account{
		ID:                id,
		deps:              deps,
		LastClaimedAmount: uint256.NewInt(0),
		Prepared:          uint256.NewInt(0),
		OutgoingBalance:   uint256.NewInt(0),
		OwedBalance:       uint256.NewInt(0),
		state:             StateInitial,
	}
}

func (a *Account) key(suffix string) string {
	if suffix == "" {
		return a.ID
	}
	return fmt.Sprintf("%s:%s", a.ID, suffix)
}

// GetIncomingClaim returns the largest validly signed claim received so far.
func (a *Account) GetIncomingClaim() Claim {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.IncomingClaim
}

// GetBalance returns the unsecured liability: prepared - incomingClaim.amount
// (spec.md §3 invariants, GLOSSARY "Unsecured").
func (a *Account) GetBalance() (*uint256.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	claimAmount, err := a.IncomingClaim.AmountUint256()
	if err != nil {
		return nil, fmt.Errorf("account %s: parse incoming claim amount: %w", a.ID, err)
	}
	if a.Prepared.Cmp(claimAmount) < 0 {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(a.Prepared, claimAmount), nil
}

// GetOutgoingBalance returns the cumulative amount promised via signed
// outgoing claims.
func (a *Account) GetOutgoingBalance() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.OutgoingBalance)
}

// Block terminally disables the account. Blocked accounts reject all data
// (spec.md §4.2 "Terminal: BLOCKED").
func (a *Account) Block(ctx context.Context, reason string) {
	a.mu.Lock()
	a.Blocked = true
	a.BlockReason = reason
	a.state = StateBlocked
	if a.claimTimerCancel != nil {
		a.claimTimerCancel()
		a.claimTimerCancel = nil
	}
	a.mu.Unlock()

	a.deps.Store.Set(a.key("block"), "true")
	a.deps.Store.Set(a.key("block_reason"), reason)
	a.deps.Logger.Warn("account blocked",
		slog.String("account_id", a.ID),
		logging.MaskField("reason", reason))
}

// SetClaimTimerCancel installs the cancellation function for the account's
// auto-claim timer. It is called by the watcher/orchestrator wiring once the
// account reaches READY, and invoked by Block/Disconnect.
func (a *Account) SetClaimTimerCancel(cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimTimerCancel != nil {
		a.claimTimerCancel()
	}
	a.claimTimerCancel = cancel
}

// Disconnect cancels the auto-claim timer and returns the account to INITIAL,
// so a later Connect reloads its persisted fields and re-derives its state.
// It does not flush the store's pending writes; the store's serial write
// queue still applies them in issue order.
func (a *Account) Disconnect() {
	a.mu.Lock()
	cancel := a.claimTimerCancel
	a.claimTimerCancel = nil
	a.state = StateInitial
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
