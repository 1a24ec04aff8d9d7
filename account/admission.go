package account

import (
	"context"

	"github.com/holiman/uint256"
)

// Deps returns a copy of the account's shared collaborators, for packages
// that operate on the account from outside (claimengine, watcher,
// subprotocol) without reaching into its private fields.
func (a *Account) Deps() Deps {
	return a.deps
}

// State returns the current readiness state under lock.
func (a *Account) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PreparedSnapshot returns a copy of the current prepared amount.
func (a *Account) PreparedSnapshot() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.Prepared)
}

// IncomingClaimAmount returns the parsed amount of the current incoming
// claim, zero if none has been received yet.
func (a *Account) IncomingClaimAmount() (*uint256.Int, error) {
	a.mu.Lock()
	claim := a.IncomingClaim
	a.mu.Unlock()
	return claim.AmountUint256()
}

// IncomingPaychanAmountDrops returns the incoming channel's escrowed amount
// in drops, or ok=false if there is no incoming channel yet.
func (a *Account) IncomingPaychanAmountDrops() (amount *uint256.Int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.IncomingPaychan == nil {
		return nil, false
	}
	return new(uint256.Int).Set(a.IncomingPaychan.Amount), true
}

// IncomingPublicKey returns the incoming channel's declared public key.
func (a *Account) IncomingPublicKey() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.IncomingPaychan == nil {
		return "", false
	}
	return a.IncomingPaychan.PublicKey, true
}

// ClientPaychanAmountDrops returns the client channel's escrowed amount in
// drops, or ok=false if there is no client channel yet.
func (a *Account) ClientPaychanAmountDrops() (amount *uint256.Int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ClientPaychan == nil {
		return nil, false
	}
	return new(uint256.Int).Set(a.ClientPaychan.Amount), true
}

// ClientPeerAddress returns the peer XRP address the client channel pays
// out to, if a client channel has been funded.
func (a *Account) ClientPeerAddress() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ClientPeerXRPAddress == "" {
		return "", false
	}
	return a.ClientPeerXRPAddress, true
}

// SetClientPeerAddress persists the peer XRP address a reverse channel was
// funded to, so a later top-up can be renegotiated without another
// fund_channel round-trip supplying it again.
func (a *Account) SetClientPeerAddress(addr string) {
	a.mu.Lock()
	a.ClientPeerXRPAddress = addr
	a.mu.Unlock()
	a.deps.Store.Set(a.key("client_channel_peer_address"), addr)
}

// ClientChannelID returns the id of the account's reverse channel, if any.
func (a *Account) ClientChannelID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ClientChannel == "" {
		return "", false
	}
	return a.ClientChannel, true
}

// IncomingChannelID returns the id of the account's incoming channel, if any.
func (a *Account) IncomingChannelID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.IncomingChannel == "" {
		return "", false
	}
	return a.IncomingChannel, true
}

// SetPrepared updates the in-flight prepared amount and persists it under
// the account's "balance" key (spec.md §3 `prepared` ("balance")).
func (a *Account) SetPrepared(v *uint256.Int) {
	a.mu.Lock()
	a.Prepared = v
	a.mu.Unlock()
	a.deps.Store.Set(a.key(""), v.String())
}

// SetIncomingClaim persists a new incoming claim as the account's high-water
// mark (spec.md §4.7 step 5). Callers must have already verified that
// newClaim is not lower than the current claim.
func (a *Account) SetIncomingClaim(ctx context.Context, newClaim Claim) error {
	a.mu.Lock()
	a.IncomingClaim = newClaim
	a.mu.Unlock()
	return a.deps.Store.SetObject(a.key("claim"), &newClaim)
}

// SetOutgoingBalance persists the cumulative amount promised via signed
// outgoing claims (spec.md §4.6 step 6).
func (a *Account) SetOutgoingBalance(v *uint256.Int) {
	a.mu.Lock()
	a.OutgoingBalance = v
	a.mu.Unlock()
	a.deps.Store.Set(a.key("outgoing_balance"), v.String())
}

// OutgoingBalanceSnapshot returns a copy of the current outgoing balance.
func (a *Account) OutgoingBalanceSnapshot() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.OutgoingBalance)
}

// OwedBalanceSnapshot returns a copy of the current owed balance.
func (a *Account) OwedBalanceSnapshot() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.OwedBalance)
}

// SetOwedBalance persists the amount owed to the peer after a failed
// settlement attempt (spec.md §4.6, §9 "Owed-balance").
func (a *Account) SetOwedBalance(v *uint256.Int) {
	a.mu.Lock()
	a.OwedBalance = v
	a.mu.Unlock()
	a.deps.Store.Set(a.key("owed_balance"), v.String())
}

// LastClaimedAmountSnapshot returns a copy of the last claimed drop amount.
func (a *Account) LastClaimedAmountSnapshot() *uint256.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(uint256.Int).Set(a.LastClaimedAmount)
}

// SetLastClaimedAmount persists the drop balance the ledger reflects after a
// claim submission (spec.md §4.8).
func (a *Account) SetLastClaimedAmount(v *uint256.Int) {
	a.mu.Lock()
	a.LastClaimedAmount = v
	a.mu.Unlock()
	a.deps.Store.Set(a.key("last_claimed"), v.String())
}

// RecordClaimFailure bumps the consecutive auto-claim failure count and
// returns the new value, for the failures_total-adjacent observability gauge.
func (a *Account) RecordClaimFailure() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claimFailureCount++
	return a.claimFailureCount
}

// ClaimFailureCountSnapshot returns the current consecutive failure count
// without mutating it.
func (a *Account) ClaimFailureCountSnapshot() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimFailureCount
}

// ResetClaimFailures clears the consecutive failure count after a successful
// claim submission.
func (a *Account) ResetClaimFailures() {
	a.mu.Lock()
	a.claimFailureCount = 0
	a.mu.Unlock()
}
