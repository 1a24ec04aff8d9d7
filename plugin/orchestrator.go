// Package plugin owns the account registry, the channel reverse index, and
// the wiring between the sub-protocol dispatcher, claim engine, and control
// loops (spec.md §5 "Shared resources").
package plugin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/claimengine"
	"xrpchan/config"
	"xrpchan/ilp"
	"xrpchan/ledger"
	"xrpchan/observability/metrics"
	"xrpchan/store"
	"xrpchan/subprotocol"
	"xrpchan/watcher"
	"xrpchan/xrpamount"
)

// PeerSender delivers sub-protocol data to a connected peer outside the
// request/reply cycle of the message that triggered it, e.g. an outgoing
// settlement claim (spec.md §4.6) or a post-funding channel refresh
// (spec.md §4.6 step 5).
type PeerSender func(ctx context.Context, accountID string, data []subprotocol.Data) error

// Orchestrator is the connector core described by spec.md §1-§2: it owns
// every Account, the channelId -> accountId reverse index, and drives the
// sub-protocol dispatcher plus the auto-claim and watcher loops.
type Orchestrator struct {
	deps    account.Deps
	cfg     *config.Config
	index   *storeChannelIndex
	metrics *metrics.Metrics
	logger  *slog.Logger

	submitter  *ledger.Submitter
	settlement claimengine.SettlementEngine
	admission  claimengine.AdmissionPolicy
	fundPolicy subprotocol.FundChannelPolicy
	dispatcher subprotocol.Dispatcher
	autoClaim  watcher.AutoClaim
	closeWatch watcher.ChannelWatcher

	sendToPeer PeerSender

	mu       sync.Mutex
	accounts map[string]*account.Account
}

// New builds an Orchestrator wiring the sub-protocol dispatcher, claim
// engine, and control loops from cfg. dataHandler is the external ILP data
// handler (spec.md §6); sendToPeer delivers unsolicited peer messages.
func New(cfg *config.Config, st *store.Wrapper, ledgerClient ledger.Client, codec ilp.Codec, dataHandler subprotocol.DataHandler, sendToPeer PeerSender, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.Default()

	deps := account.Deps{
		Store:         st,
		Ledger:        ledgerClient,
		ServerAddress: cfg.Address,
		ServerSecret:  cfg.Secret,
		CurrencyScale: cfg.Scale(),
		Logger:        logger,
	}

	submitter := ledger.NewSubmitter(ledgerClient, logger)

	o := &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		index:     newChannelIndex(st),
		metrics:   m,
		logger:    logger,
		submitter: submitter,
		accounts:  make(map[string]*account.Account),
		fundPolicy: subprotocol.FundChannelPolicy{
			MinIncomingChannelDrops:     minIncomingChannelDrops(cfg),
			OutgoingChannelDefaultDrops: outgoingChannelDefaultDrops(cfg),
			OutgoingChannelSettleDelay:  paychanSettleDelay(),
		},
		autoClaim: watcher.AutoClaim{
			Ledger:        ledgerClient,
			Submitter:     submitter,
			Interval:      cfg.ClaimInterval(),
			MaxFeePercent: cfg.MaxFeePercent,
			Logger:        logger,
			Metrics:       m,
		},
		closeWatch: watcher.ChannelWatcher{
			Ledger:   ledgerClient,
			Interval: cfg.WatcherInterval(),
			Logger:   logger,
			Metrics:  m,
		},
		sendToPeer: sendToPeer,
	}

	maxPacket, _ := amountOrNil(cfg.MaxPacketAmount)
	bandwidth, _ := amountOrNil(cfg.Bandwidth)

	o.admission = claimengine.AdmissionPolicy{
		MaxPacketAmount: maxPacket,
		Bandwidth:       bandwidth,
		CurrencyScale:   deps.CurrencyScale,
		Metrics:         m,
	}
	o.settlement = claimengine.SettlementEngine{
		ServerSecret:       cfg.Secret,
		CurrencyScale:      deps.CurrencyScale,
		OnCapacityExceeded: o.onCapacityExceeded,
		Metrics:            m,
		Logger:             logger,
	}
	o.dispatcher = subprotocol.Dispatcher{
		Ledger:     ledgerClient,
		Submitter:  submitter,
		Index:      o.index,
		FundPolicy: o.fundPolicy,
		ILP: subprotocol.ILPEngine{
			Codec:     codec,
			Admission: o.admission,
			Data:      dataHandler,
			Money:     o.onMoney,
		},
		Logger:  logger,
		Metrics: m,
	}
	return o
}

func amountOrNil(s string) (*uint256.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func minIncomingChannelDrops(cfg *config.Config) *uint256.Int {
	// A reverse channel is only worth funding once the peer has escrowed
	// enough to make settling in that direction meaningful; half the
	// outgoing default is a conservative floor grounded on the same
	// OUTGOING_CHANNEL_DEFAULT_AMOUNT the settlement engine funds with.
	return new(uint256.Int).Div(outgoingChannelDefaultDrops(cfg), uint256.NewInt(2))
}

func outgoingChannelDefaultDrops(cfg *config.Config) *uint256.Int {
	if v, err := uint256.FromDecimal(cfg.MaxBalance); err == nil && !v.IsZero() {
		return v
	}
	return uint256.NewInt(10_000_000) // 10 XRP
}

func paychanSettleDelay() uint32 {
	return 24 * 60 * 60 // 1 day, safely above the platform MinSettleDelay
}

// Connect creates or loads the account identified by accountID and drives it
// to its resting state (spec.md §4.2). Reaching READY arms the auto-claim
// timer.
func (o *Orchestrator) Connect(ctx context.Context, accountID string) (*account.Account, error) {
	o.mu.Lock()
	a, ok := o.accounts[accountID]
	if !ok {
		a = account.New(accountID, o.deps)
		o.accounts[accountID] = a
	}
	o.mu.Unlock()

	if err := a.Connect(ctx); err != nil {
		return nil, fmt.Errorf("plugin: connect %s: %w", accountID, err)
	}
	if a.State() == account.StateReady {
		o.armTimer(ctx, a)
	}
	return a, nil
}

// Disconnect cancels the account's auto-claim timer without removing it from
// the registry, so a later reconnect resumes cleanly (spec.md §5
// "Disconnect cancels all auto-claim timers").
func (o *Orchestrator) Disconnect(accountID string) {
	o.mu.Lock()
	a, ok := o.accounts[accountID]
	o.mu.Unlock()
	if ok {
		a.Disconnect()
	}
}

func (o *Orchestrator) armTimer(ctx context.Context, a *account.Account) {
	cancel := o.autoClaim.Start(ctx, a)
	a.SetClaimTimerCancel(cancel)
}

// HandleMessage runs the sub-protocol dispatcher for a peer message
// addressed to accountID.
func (o *Orchestrator) HandleMessage(ctx context.Context, accountID, peerFullAddress string, msg subprotocol.Message) ([]subprotocol.Data, error) {
	o.mu.Lock()
	a, ok := o.accounts[accountID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("plugin: unknown account %s", accountID)
	}

	preChannelState := a.State()
	reply, err := o.dispatcher.Dispatch(ctx, a, peerFullAddress, msg)
	if err != nil {
		return nil, err
	}
	if preChannelState != account.StateReady && a.State() == account.StateReady {
		o.armTimer(ctx, a)
	}
	return reply, nil
}

// onMoney is the subprotocol.MoneyHandler invoked after a FULFILL for a
// non-zero amount (spec.md §4.6): sign and deliver a settlement claim.
func (o *Orchestrator) onMoney(ctx context.Context, a *account.Account, amount uint64) {
	claim, err := o.settlement.SendMoney(ctx, a, uint256.NewInt(amount))
	if err != nil {
		o.logger.Warn("settlement deferred", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	if claim == nil || o.sendToPeer == nil {
		return
	}
	body, err := json.Marshal(claim)
	if err != nil {
		o.logger.Error("settlement: encode claim failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	if err := o.sendToPeer(ctx, a.ID, []subprotocol.Data{{Name: subprotocol.NameClaim, ContentType: "application/json", Data: body}}); err != nil {
		o.logger.Warn("settlement: deliver claim failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
	}
}

// onCapacityExceeded is the claimengine.FundingTrigger fired on every
// settlement attempt that would exceed the client channel's escrow. It is
// called unconditionally by SendMoney, so it may run concurrently with
// another attempt still negotiating a top-up for the same account;
// subprotocol.HandleFundChannel's top-up path owns the account's funding
// flag itself and reports ErrFundingInProgress when one is already live,
// which this treats as a benign no-op rather than a failure.
func (o *Orchestrator) onCapacityExceeded(ctx context.Context, a *account.Account, requiredDrops *uint256.Int) {
	attemptID := uuid.NewString()
	log := o.logger.With(slog.String("correlation_id", attemptID), slog.String("account_id", a.ID))

	peerAddress, ok := a.ClientPeerAddress()
	if !ok {
		log.Warn("funding trigger: no known peer address")
		return
	}
	id, err := subprotocol.HandleFundChannel(ctx, o.submitter, o.fundPolicy, a, peerAddress, requiredDrops)
	if err != nil {
		if errors.Is(err, subprotocol.ErrFundingInProgress) {
			log.Debug("funding trigger skipped, top-up already in progress")
			return
		}
		log.Warn("funding trigger failed", slog.String("error", err.Error()))
		return
	}
	log.Info("funding trigger submitted", slog.String("channel_id", id), slog.String("required_drops", requiredDrops.String()))
	if o.sendToPeer == nil {
		return
	}
	_ = o.sendToPeer(ctx, a.ID, []subprotocol.Data{{Name: subprotocol.NameChannel, ContentType: "text/plain", Data: []byte(id)}})
}

// Watch starts the channel-close watcher over a live snapshot of connected
// accounts, blocking accounts whose incoming channel enters its close
// window (spec.md §4.9).
func (o *Orchestrator) Watch(ctx context.Context) {
	o.closeWatch.Run(ctx, o.snapshot, o.onChannelClose)
}

func (o *Orchestrator) snapshot() []*account.Account {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*account.Account, 0, len(o.accounts))
	for _, a := range o.accounts {
		out = append(out, a)
	}
	return out
}

func (o *Orchestrator) onChannelClose(ctx context.Context, a *account.Account) {
	channelID, ok := a.IncomingChannelID()
	if !ok {
		a.Block(ctx, "incoming channel entering close window")
		return
	}
	a.Block(ctx, fmt.Sprintf("incoming channel %s entering close window", channelID))

	claim := a.GetIncomingClaim()
	claimAmount, err := claim.AmountUint256()
	if err != nil || claimAmount.IsZero() {
		return
	}
	pubKey, ok := a.IncomingPublicKey()
	if !ok {
		o.logger.Error("channel close: no declared public key for final claim", slog.String("account_id", a.ID), slog.String("channel_id", channelID))
		return
	}
	drops := xrpamount.ToDropsRoundDown(claimAmount, o.deps.CurrencyScale)
	sig, err := hex.DecodeString(claim.Signature)
	if err != nil {
		o.logger.Error("channel close: malformed stored signature", slog.String("account_id", a.ID), slog.String("error", err.Error()))
		return
	}
	if _, err := o.submitter.SubmitClaim(ctx, ledger.ChannelClaimRequest{
		ChannelID: channelID,
		Balance:   drops,
		Signature: fmt.Sprintf("%X", sig),
		PublicKey: pubKey,
		Close:     true,
	}); err != nil {
		o.logger.Warn("final channel claim failed", slog.String("account_id", a.ID), slog.String("error", err.Error()))
	}
}
