package claimengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/ilp"
	"xrpchan/observability/metrics"
	"xrpchan/xrpamount"
)

// FundingTrigger is called on every attempt where an account's client
// channel no longer has enough capacity to cover the next outgoing claim.
// The settlement engine only detects the shortfall; negotiating the top-up,
// including guarding against a concurrent top-up already in flight via the
// account's own TryStartFunding/FinishFunding flag, is entirely the
// trigger's responsibility, since it requires exchanging fund_channel
// sub-protocol messages with the peer.
type FundingTrigger func(ctx context.Context, a *account.Account, requiredDrops *uint256.Int)

// SettlementEngine signs and accounts for outgoing claims (spec.md §4.6).
type SettlementEngine struct {
	ServerSecret       string
	CurrencyScale      uint8
	OnCapacityExceeded FundingTrigger
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

func (e SettlementEngine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// setOwed persists the owed balance and reflects it on the owedBalance gauge.
func (e SettlementEngine) setOwed(a *account.Account, v *uint256.Int) {
	a.SetOwedBalance(v)
	if e.Metrics != nil {
		e.Metrics.OwedBalance.WithLabelValues(a.ID).Set(v.Float64())
	}
}

// SendMoney folds prepareAmount (base units owed for a just-fulfilled
// PREPARE) into the account's owed balance, signs a new claim over as much
// of the resulting total as the client channel's capacity allows, and
// returns the claim to hand the peer. Any remainder beyond channel capacity
// stays in owedBalance and is retried on the next call (spec.md §4.6,
// §9 "Owed-balance ... reconciliation").
func (e SettlementEngine) SendMoney(ctx context.Context, a *account.Account, prepareAmount *uint256.Int) (*account.Claim, error) {
	correlationID := uuid.NewString()
	log := e.logger().With(slog.String("correlation_id", correlationID), slog.String("account_id", a.ID))

	owed := a.OwedBalanceSnapshot()
	total := new(uint256.Int).Add(owed, prepareAmount)

	channelID, ok := a.ClientChannelID()
	if !ok {
		// No reverse channel yet: everything stays owed until one exists.
		e.setOwed(a, total)
		return nil, ilp.NewInsufficientLiquidityError(fmt.Sprintf("account %s has no client channel yet", a.ID))
	}

	channelDrops, ok := a.ClientPaychanAmountDrops()
	if !ok {
		e.setOwed(a, total)
		return nil, ilp.NewInsufficientLiquidityError(fmt.Sprintf("account %s has no client channel yet", a.ID))
	}

	outgoing := a.OutgoingBalanceSnapshot()
	desiredBalance := new(uint256.Int).Add(outgoing, total)
	desiredDrops := xrpamount.ToDropsRoundUp(desiredBalance, e.CurrencyScale)

	settledBalance := desiredBalance
	settledDrops := desiredDrops
	var remainder *uint256.Int

	if desiredDrops.Cmp(channelDrops) > 0 {
		// Only claim up to the channel's escrowed amount; the rest is owed
		// and will be retried once the channel is topped up.
		settledDrops = new(uint256.Int).Set(channelDrops)
		settledBalance = maxClaimableBaseUnits(settledDrops, e.CurrencyScale, desiredBalance)
		remainder = new(uint256.Int).Sub(desiredBalance, settledBalance)

		log.Info("client channel capacity exceeded, triggering funding",
			slog.String("desired_drops", desiredDrops.String()))
		if e.OnCapacityExceeded != nil {
			e.OnCapacityExceeded(ctx, a, desiredDrops)
		}

		if e.Metrics != nil {
			e.Metrics.SettlementsFailed.WithLabelValues(a.ID, "capacity").Inc()
		}
	}

	if settledBalance.Cmp(outgoing) <= 0 {
		// Nothing new can be claimed this round; the whole increment is owed.
		e.setOwed(a, total)
		return nil, ilp.NewInsufficientLiquidityError(fmt.Sprintf(
			"account %s client channel exhausted, %s owed", a.ID, total))
	}

	if !settledDrops.IsUint64() {
		return nil, fmt.Errorf("claimengine: settlement amount overflows a drop count")
	}

	var channelIDBytes [32]byte
	if err := decodeChannelID(channelID, &channelIDBytes); err != nil {
		return nil, fmt.Errorf("claimengine: %w", err)
	}

	seed := crypto.DeriveAccountSeed(e.ServerSecret, a.ID)
	_, priv, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("claimengine: derive signing key: %w", err)
	}
	sig := crypto.SignClaim(priv, channelIDBytes, settledDrops.Uint64())

	a.SetOutgoingBalance(settledBalance)
	if remainder != nil {
		e.setOwed(a, remainder)
	} else {
		e.setOwed(a, uint256.NewInt(0))
	}

	if e.Metrics != nil {
		e.Metrics.SettlementsSent.WithLabelValues(a.ID).Inc()
	}
	log.Info("settlement claim signed",
		slog.String("channel_id", channelID),
		slog.String("balance_drops", settledDrops.String()))

	return &account.Claim{Amount: settledBalance.String(), Signature: fmt.Sprintf("%X", sig)}, nil
}

// maxClaimableBaseUnits finds the largest base-unit amount whose rounded-up
// drop conversion does not exceed capDrops, by converting capDrops back to
// base units and never exceeding desired. Rounding up is monotonic, so that
// conversion of capDrops is always claimable within capacity.
func maxClaimableBaseUnits(capDrops *uint256.Int, currencyScale uint8, desired *uint256.Int) *uint256.Int {
	if currencyScale <= xrpamount.DropScale {
		// One base unit maps to a whole number of drops or more; dividing
		// back down never rounds up past capDrops.
		scaleFactor := xrpamount.ToDropsRoundDown(uint256.NewInt(1), currencyScale)
		if scaleFactor.IsZero() {
			return uint256.NewInt(0)
		}
		q := new(uint256.Int).Div(capDrops, scaleFactor)
		if q.Cmp(desired) > 0 {
			return new(uint256.Int).Set(desired)
		}
		return q
	}
	// Several base units make up one drop; capDrops converts back up exactly,
	// and its round-up drop conversion is capDrops itself.
	q := xrpamount.FromDropsRoundUp(capDrops, currencyScale)
	if q.Cmp(desired) > 0 {
		return new(uint256.Int).Set(desired)
	}
	return q
}
