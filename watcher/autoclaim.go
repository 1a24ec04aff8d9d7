package watcher

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/ledger"
	"xrpchan/observability/metrics"
	"xrpchan/xrpamount"
)

// DefaultClaimInterval is the auto-claim period spec.md §4.8 defaults to.
const DefaultClaimInterval = 60 * time.Second

// DefaultMaxFeePercent is the fraction of claim income spendable as fee.
const DefaultMaxFeePercent = 0.01

// AutoClaim periodically evaluates and submits the best-known claim for an
// account (spec.md §4.8).
type AutoClaim struct {
	Ledger        ledger.Client
	Submitter     *ledger.Submitter
	Interval      time.Duration
	MaxFeePercent float64
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func (c AutoClaim) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return DefaultClaimInterval
}

func (c AutoClaim) maxFeePercent() float64 {
	if c.MaxFeePercent > 0 {
		return c.MaxFeePercent
	}
	return DefaultMaxFeePercent
}

func (c AutoClaim) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Start arms the auto-claim timer for a single account and returns a cancel
// function, meant to be installed via account.SetClaimTimerCancel.
func (c AutoClaim) Start(ctx context.Context, a *account.Account) func() {
	claimCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.interval())
		defer ticker.Stop()
		for {
			select {
			case <-claimCtx.Done():
				return
			case <-ticker.C:
				c.attempt(claimCtx, a)
			}
		}
	}()
	return cancel
}

func (c AutoClaim) attempt(ctx context.Context, a *account.Account) {
	channelID, ok := a.IncomingChannelID()
	if !ok {
		return
	}

	claimAmount, err := a.IncomingClaimAmount()
	if err != nil {
		c.logger().Error("auto-claim: parse incoming claim failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	lastClaimed := a.LastClaimedAmountSnapshot()
	if claimAmount.Cmp(lastClaimed) <= 0 {
		return
	}
	income := new(uint256.Int).Sub(claimAmount, lastClaimed)

	feeDrops, err := c.Ledger.GetFeeDrops(ctx)
	if err != nil {
		// Ledger submission errors in auto-claim are logged and swallowed;
		// the next interval retries (spec.md §7).
		consecutive := a.RecordClaimFailure()
		if c.Metrics != nil {
			c.Metrics.AccountsClaimFailures.WithLabelValues(a.ID).Set(float64(consecutive))
		}
		c.logger().Warn("auto-claim: fee query failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	scale := a.Deps().CurrencyScale
	fee := xrpamount.FromDropsRoundUp(feeDrops, scale)

	if !isProfitable(income, fee, c.maxFeePercent()) {
		return
	}

	// Re-query before submitting: the ledger balance may already cover the
	// claim if a prior submission's confirmation raced this tick.
	ch, err := c.Ledger.GetPaymentChannel(ctx, channelID)
	if err != nil {
		consecutive := a.RecordClaimFailure()
		if c.Metrics != nil {
			c.Metrics.AccountsClaimFailures.WithLabelValues(a.ID).Set(float64(consecutive))
		}
		c.logger().Warn("auto-claim: channel query failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	claimDrops := xrpamount.ToDropsRoundDown(claimAmount, scale)
	if ch.Balance.Cmp(claimDrops) >= 0 {
		a.SetLastClaimedAmount(claimDrops)
		return
	}

	claim := a.GetIncomingClaim()
	sig, err := hex.DecodeString(claim.Signature)
	if err != nil {
		c.logger().Error("auto-claim: malformed stored signature", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}

	result, err := c.Submitter.SubmitClaim(ctx, ledger.ChannelClaimRequest{
		ChannelID: channelID,
		Balance:   claimDrops,
		Signature: fmt.Sprintf("%X", sig),
		PublicKey: ch.PublicKey,
	})
	if err != nil {
		consecutive := a.RecordClaimFailure()
		if c.Metrics != nil {
			c.Metrics.AutoClaimFailures.WithLabelValues(a.ID).Inc()
			c.Metrics.AccountsClaimFailures.WithLabelValues(a.ID).Set(float64(consecutive))
		}
		c.logger().Warn("auto-claim: submission failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	_ = result
	a.ResetClaimFailures()
	if c.Metrics != nil {
		c.Metrics.AccountsClaimFailures.WithLabelValues(a.ID).Set(0)
	}
	a.SetLastClaimedAmount(claimDrops)
}

// isProfitable implements spec.md §4.8's income > 0 && fee/income <=
// maxFeePercent check. Claim amounts are bounded by a single channel's
// escrow, well within float64's exact-integer range, so the uint256 ->
// float64 conversion loses no precision that matters for this ratio.
func isProfitable(income, fee *uint256.Int, maxFeePercent float64) bool {
	if income.IsZero() {
		return false
	}
	return fee.Float64()/income.Float64() <= maxFeePercent
}
