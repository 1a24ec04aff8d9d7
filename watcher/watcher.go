// Package watcher implements the two periodic control loops spec.md §4.8
// and §4.9 describe: submitting profitable auto-claims and detecting
// channels approaching their close window.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"xrpchan/account"
	"xrpchan/ledger"
	"xrpchan/observability/metrics"
)

// DefaultInterval is the ChannelWatcher's poll period (spec.md §4.9 "~10
// min").
const DefaultInterval = 10 * time.Minute

// ChannelWatcher polls each watched account's incoming channel and reports
// channels entering their settle-delay close window.
type ChannelWatcher struct {
	Ledger   ledger.Client
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (w ChannelWatcher) interval() time.Duration {
	if w.Interval > 0 {
		return w.Interval
	}
	return DefaultInterval
}

func (w ChannelWatcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// OnClose is called once per account whose incoming channel is entering its
// close window (spec.md §4.9). The orchestrator blocks the account and
// submits a final closing claim in response.
type OnClose func(ctx context.Context, a *account.Account)

// Run polls every interval until ctx is cancelled. accounts returns a
// snapshot of the accounts to watch; it is called fresh on every tick so
// newly-READY accounts are picked up without a restart.
func (w ChannelWatcher) Run(ctx context.Context, accounts func() []*account.Account, onClose OnClose) {
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx, accounts(), onClose)
		}
	}
}

func (w ChannelWatcher) tick(ctx context.Context, accounts []*account.Account, onClose OnClose) {
	for _, a := range accounts {
		channelID, ok := a.IncomingChannelID()
		if !ok {
			continue
		}
		ch, err := w.Ledger.GetPaymentChannel(ctx, channelID)
		if err != nil {
			w.logger().Warn("channel watcher: query failed",
				slog.String("account_id", a.ID),
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()))
			continue
		}
		if enteringCloseWindow(ch.Expiration, ch.SettleDelay) || enteringCloseWindow(ch.CancelAfter, ch.SettleDelay) {
			w.logger().Warn("channel entering close window",
				slog.String("account_id", a.ID),
				slog.String("channel_id", channelID))
			if w.Metrics != nil {
				w.Metrics.ChannelClosures.Inc()
			}
			onClose(ctx, a)
		}
	}
}

// enteringCloseWindow reports whether now + settleDelay has reached the
// ledger close-time deadline, meaning a closing transaction submitted right
// now might not confirm before the channel actually closes.
func enteringCloseWindow(deadline *uint64, settleDelayS uint32) bool {
	if deadline == nil {
		return false
	}
	now := uint64(time.Now().Unix())
	return now+uint64(settleDelayS) >= *deadline
}
