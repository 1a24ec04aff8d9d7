package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"xrpchan/ledger"
	"xrpchan/paychan"
	"xrpchan/xrpamount"
)

const (
	loadRetryDelay = 2 * time.Second
	loadMaxRetries = 5
)

// Connect drives the account from INITIAL through LOADING_CHANNEL and
// LOADING_CLIENT_CHANNEL to its resting state (spec.md §4.2). It is valid
// only from INITIAL.
func (a *Account) Connect(ctx context.Context) error {
	a.mu.Lock()
	if err := a.assertState("connect", StateInitial); err != nil {
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	if err := a.loadPersistedFields(ctx); err != nil {
		return fmt.Errorf("account %s: connect: %w", a.ID, err)
	}

	a.mu.Lock()
	blocked := a.Blocked
	a.mu.Unlock()
	if blocked {
		a.mu.Lock()
		a.state = StateBlocked
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	a.state = StateLoadingChannel
	a.mu.Unlock()

	return a.loadChannel(ctx)
}

func (a *Account) loadPersistedFields(ctx context.Context) error {
	s := a.deps.Store

	if err := s.Load(ctx, a.key("")); err != nil {
		return err
	}
	if v, ok := s.Get(a.key("")); ok {
		a.mu.Lock()
		a.Prepared, _ = xrpamount.FromString(v)
		a.mu.Unlock()
	}

	if err := s.LoadObject(ctx, a.key("claim"), func() interface{} { return &Claim{} }); err != nil {
		return err
	}
	if v, ok := s.GetObject(a.key("claim")); ok {
		a.mu.Lock()
		a.IncomingClaim = *(v.(*Claim))
		a.mu.Unlock()
	}

	for _, kv := range []struct {
		suffix string
		set    func(string)
	}{
		{"channel", func(v string) { a.IncomingChannel = v }},
		{"client_channel", func(v string) { a.ClientChannel = v }},
		{"client_channel_peer_address", func(v string) { a.ClientPeerXRPAddress = v }},
	} {
		if err := s.Load(ctx, a.key(kv.suffix)); err != nil {
			return err
		}
		if v, ok := s.Get(a.key(kv.suffix)); ok {
			a.mu.Lock()
			kv.set(v)
			a.mu.Unlock()
		}
	}

	for _, kv := range []struct {
		suffix string
		set    func(*uint256.Int)
	}{
		{"outgoing_balance", func(v *uint256.Int) { a.OutgoingBalance = v }},
		{"last_claimed", func(v *uint256.Int) { a.LastClaimedAmount = v }},
		{"owed_balance", func(v *uint256.Int) { a.OwedBalance = v }},
	} {
		if err := s.Load(ctx, a.key(kv.suffix)); err != nil {
			return err
		}
		if v, ok := s.Get(a.key(kv.suffix)); ok {
			amt, err := xrpamount.FromString(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", kv.suffix, err)
			}
			a.mu.Lock()
			kv.set(amt)
			a.mu.Unlock()
		}
	}

	if err := s.Load(ctx, a.key("block")); err != nil {
		return err
	}
	if v, ok := s.Get(a.key("block")); ok && v == "true" {
		a.mu.Lock()
		a.Blocked = true
		a.mu.Unlock()
	}
	if err := s.Load(ctx, a.key("block_reason")); err != nil {
		return err
	}
	if v, ok := s.Get(a.key("block_reason")); ok {
		a.mu.Lock()
		a.BlockReason = v
		a.mu.Unlock()
	}
	return nil
}

// loadChannel implements the LOADING_CHANNEL state: if a channel id is
// persisted, fetch its ledger state and validate it; otherwise move to
// ESTABLISHING_CHANNEL to await the peer's channel sub-protocol.
func (a *Account) loadChannel(ctx context.Context) error {
	a.mu.Lock()
	channelID := a.IncomingChannel
	a.mu.Unlock()

	if channelID == "" {
		a.mu.Lock()
		a.state = StateEstablishingChannel
		a.mu.Unlock()
		return nil
	}

	ch, err := a.fetchChannelWithRetry(ctx, channelID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			a.Block(ctx, fmt.Sprintf("incoming channel %s no longer exists on the ledger", channelID))
			if delErr := a.DeleteChannel(ctx); delErr != nil {
				return delErr
			}
			return nil
		}
		return err
	}
	if err := paychan.Validate(ch, a.deps.ServerAddress); err != nil {
		a.Block(ctx, err.Error())
		return nil
	}

	a.mu.Lock()
	a.IncomingPaychan = ch
	a.state = StateLoadingClientChannel
	a.mu.Unlock()

	return a.loadClientChannel(ctx)
}

func (a *Account) fetchChannelWithRetry(ctx context.Context, channelID string) (*paychan.Channel, error) {
	var lastErr error
	for attempt := 0; attempt < loadMaxRetries; attempt++ {
		ch, err := a.deps.Ledger.GetPaymentChannel(ctx, channelID)
		if err == nil {
			return ch, nil
		}
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(loadRetryDelay):
		}
	}
	return nil, fmt.Errorf("account %s: load channel %s: %w", a.ID, channelID, lastErr)
}

// loadClientChannel implements LOADING_CLIENT_CHANNEL.
func (a *Account) loadClientChannel(ctx context.Context) error {
	a.mu.Lock()
	channelID := a.ClientChannel
	a.mu.Unlock()

	if channelID == "" {
		a.mu.Lock()
		a.state = StateEstablishingClientChannel
		a.mu.Unlock()
		return nil
	}

	ch, err := a.fetchChannelWithRetry(ctx, channelID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			a.mu.Lock()
			a.ClientChannel = ""
			a.ClientPaychan = nil
			a.state = StateEstablishingClientChannel
			a.mu.Unlock()
			a.deps.Store.Delete(a.key("client_channel"))
			return nil
		}
		return err
	}

	a.mu.Lock()
	a.ClientPaychan = ch
	a.state = StateReady
	a.mu.Unlock()
	return nil
}

// PrepareChannel locks the account into PREPARING_CHANNEL before adopting a
// new incoming channel discovered via the peer's `channel` sub-protocol. ch
// must already have passed paychan.Validate and channel_signature
// verification; the reverse-index race is resolved by the caller via
// store.Wrapper's cache-wins-on-load rule.
func (a *Account) PrepareChannel(ctx context.Context, ch *paychan.Channel) error {
	a.mu.Lock()
	if err := a.assertState("prepareChannel", StateEstablishingChannel, StateReady); err != nil {
		a.mu.Unlock()
		return err
	}
	priorState := a.state
	a.state = StatePreparingChannel
	a.mu.Unlock()

	if err := paychan.Validate(ch, a.deps.ServerAddress); err != nil {
		a.resetChannel(priorState)
		return err
	}

	a.deps.Store.Set(a.key("channel"), ch.ID)

	a.mu.Lock()
	a.IncomingChannel = ch.ID
	a.IncomingPaychan = ch
	if priorState == StateReady {
		// Already had a client channel before this rebind; nothing about the
		// client side changed.
		a.state = StateReady
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	// Coming from ESTABLISHING_CHANNEL, the client channel side of the pair
	// has never been loaded, since Connect only reaches loadClientChannel via
	// an existing incoming channel. Replay the same persisted/empty check
	// loadClientChannel runs on a normal connect, so a peer with an
	// already-open client channel on the ledger lands in READY and one with
	// none lands in ESTABLISHING_CLIENT_CHANNEL to await fund_channel.
	return a.loadClientChannel(ctx)
}

func (a *Account) resetChannel(priorState State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = priorState
}

// PrepareClientChannel locks the account into PREPARING_CLIENT_CHANNEL while
// a reverse channel is created and confirmed on-ledger (spec.md §4.4 item 4).
func (a *Account) PrepareClientChannel(ctx context.Context) (func(ch *paychan.Channel), func(), error) {
	a.mu.Lock()
	if err := a.assertState("prepareClientChannel", StateEstablishingClientChannel); err != nil {
		a.mu.Unlock()
		return nil, nil, err
	}
	a.state = StatePreparingClientChannel
	a.mu.Unlock()

	commit := func(ch *paychan.Channel) {
		a.deps.Store.Set(a.key("client_channel"), ch.ID)
		a.mu.Lock()
		a.ClientChannel = ch.ID
		a.ClientPaychan = ch
		a.state = StateReady
		a.mu.Unlock()
	}
	abort := func() {
		a.mu.Lock()
		a.state = StateEstablishingClientChannel
		a.mu.Unlock()
	}
	return commit, abort, nil
}

// RefreshClientPaychan updates the cached client channel state after a
// funding transaction confirms (spec.md §4.6 step 5).
func (a *Account) RefreshClientPaychan(ch *paychan.Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ClientPaychan = ch
}

// DeleteChannel clears the incoming channel fields once it no longer exists
// on the ledger, returning the escrowed-but-unsecured liability to zero by
// subtracting lastClaimedAmount from prepared (spec.md §3 "Lifecycle").
func (a *Account) DeleteChannel(ctx context.Context) error {
	a.mu.Lock()
	if a.Prepared.Cmp(a.LastClaimedAmount) >= 0 {
		a.Prepared = new(uint256.Int).Sub(a.Prepared, a.LastClaimedAmount)
	} else {
		a.Prepared = uint256.NewInt(0)
	}
	a.IncomingChannel = ""
	a.IncomingPaychan = nil
	prepared := a.Prepared.String()
	a.mu.Unlock()

	a.deps.Store.Set(a.key(""), prepared)
	a.deps.Store.Delete(a.key("channel"))
	return nil
}

// TryStartFunding sets the non-reentrancy funding flag and reports whether
// this caller won the race (spec.md §4.6 step 5, §5 "non-reentrant via the
// funding flag").
func (a *Account) TryStartFunding() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.funding {
		return false
	}
	a.funding = true
	return true
}

// FinishFunding clears the funding flag.
func (a *Account) FinishFunding() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.funding = false
}
