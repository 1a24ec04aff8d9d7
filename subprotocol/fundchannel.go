package subprotocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/ledger"
)

// ErrFundingInProgress is returned by the top-up path when the account's
// non-reentrancy funding flag (account.TryStartFunding/FinishFunding) is
// already held, e.g. by a concurrent trigger. It is not a failure the caller
// needs to retry immediately; the flag holder's own attempt is still live.
var ErrFundingInProgress = errors.New("fund_channel: funding already in progress for this account")

// FundChannelPolicy carries the fixed amounts spec.md §4.4 item 4 requires.
type FundChannelPolicy struct {
	MinIncomingChannelDrops     *uint256.Int
	OutgoingChannelDefaultDrops *uint256.Int
	OutgoingChannelSettleDelay  uint32
}

// HandleFundChannel implements spec.md §4.4 item 4: establish the account's
// reverse channel the first time it is needed (ESTABLISHING_CLIENT_CHANNEL),
// or top up an already-open one when its capacity runs low (READY). Any
// other state is a protocol error. requiredDrops is the escrow the caller
// needs available right now; it is only consulted by the top-up path and may
// be nil when establishing the channel for the first time.
func HandleFundChannel(ctx context.Context, submitter *ledger.Submitter, policy FundChannelPolicy, a *account.Account, peerAddress string, requiredDrops *uint256.Int) (string, error) {
	switch a.State() {
	case account.StateEstablishingClientChannel:
		return handleInitialFundChannel(ctx, submitter, policy, a, peerAddress)
	case account.StateReady:
		return handleFundChannelTopUp(ctx, submitter, policy, a, requiredDrops)
	default:
		return "", fmt.Errorf("protocol error: fund_channel not allowed in state %s", a.State())
	}
}

// handleInitialFundChannel creates a reverse channel of
// OUTGOING_CHANNEL_DEFAULT_AMOUNT, waits for ledger confirmation, and records
// it as the account's client channel.
func handleInitialFundChannel(ctx context.Context, submitter *ledger.Submitter, policy FundChannelPolicy, a *account.Account, peerAddress string) (string, error) {
	incomingDrops, ok := a.IncomingPaychanAmountDrops()
	if !ok || incomingDrops.Cmp(policy.MinIncomingChannelDrops) < 0 {
		return "", fmt.Errorf("validation error: incoming channel does not meet the minimum escrow required to fund a reverse channel")
	}

	commit, abort, err := a.PrepareClientChannel(ctx)
	if err != nil {
		return "", err
	}

	seed := crypto.DeriveAccountSeed(a.Deps().ServerSecret, a.ID)
	pub, _, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		abort()
		return "", fmt.Errorf("fund_channel: derive signing key: %w", err)
	}

	result, err := submitter.SubmitCreate(ctx, ledger.ChannelCreateRequest{
		Destination: peerAddress,
		Amount:      policy.OutgoingChannelDefaultDrops,
		SettleDelay: policy.OutgoingChannelSettleDelay,
		PublicKey:   fmt.Sprintf("%X", append([]byte{0xED}, pub...)),
	})
	if err != nil {
		abort()
		return "", fmt.Errorf("fund_channel: %w", err)
	}

	ch, err := a.Deps().Ledger.GetPaymentChannel(ctx, result.ChannelID)
	if err != nil {
		abort()
		return "", fmt.Errorf("fund_channel: reload created channel: %w", err)
	}

	commit(ch)
	a.SetClientPeerAddress(peerAddress)
	return ch.ID, nil
}

// handleFundChannelTopUp adds escrow to the account's existing client channel
// in place, so outgoing claims already signed against its id stay valid. The
// account stays in READY throughout, so unlike the create path it has no
// state transition to serialize concurrent callers; it takes the account's
// non-reentrancy funding flag itself (account.TryStartFunding/FinishFunding)
// so it is safe to call concurrently regardless of whether the caller
// already holds the flag.
func handleFundChannelTopUp(ctx context.Context, submitter *ledger.Submitter, policy FundChannelPolicy, a *account.Account, requiredDrops *uint256.Int) (string, error) {
	if !a.TryStartFunding() {
		return "", ErrFundingInProgress
	}
	defer a.FinishFunding()

	channelID, ok := a.ClientChannelID()
	if !ok {
		return "", fmt.Errorf("protocol error: fund_channel top-up requested with no existing client channel")
	}
	currentDrops, ok := a.ClientPaychanAmountDrops()
	if !ok {
		return "", fmt.Errorf("protocol error: fund_channel top-up requested with no existing client channel")
	}

	topUp := new(uint256.Int).Set(policy.OutgoingChannelDefaultDrops)
	if requiredDrops != nil && requiredDrops.Cmp(currentDrops) > 0 {
		if shortfall := new(uint256.Int).Sub(requiredDrops, currentDrops); shortfall.Cmp(topUp) > 0 {
			topUp = shortfall
		}
	}

	if _, err := submitter.SubmitFund(ctx, ledger.ChannelFundRequest{ChannelID: channelID, Amount: topUp}); err != nil {
		return "", fmt.Errorf("fund_channel top-up: %w", err)
	}

	ch, err := a.Deps().Ledger.GetPaymentChannel(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("fund_channel top-up: reload funded channel: %w", err)
	}
	a.RefreshClientPaychan(ch)
	return ch.ID, nil
}
