package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"xrpchan/paychan"
)

// FakeLedger is an in-memory Client used by tests and the cmd/paychand demo
// binary in place of a real XRPL RPC endpoint (out of scope per spec.md §1).
type FakeLedger struct {
	mu        sync.Mutex
	channels  map[string]*paychan.Channel
	feeDrops  *uint256.Int
	nextTag   uint32
	events    map[string]chan AccountEvent
	submitErr error
}

// NewFakeLedger returns a FakeLedger seeded with a default network fee.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		channels: make(map[string]*paychan.Channel),
		feeDrops: uint256.NewInt(10),
		events:   make(map[string]chan AccountEvent),
	}
}

func (f *FakeLedger) Connect(context.Context) error { return nil }

func (f *FakeLedger) SubscribeAccount(_ context.Context, address string) (<-chan AccountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.events[address]
	if !ok {
		ch = make(chan AccountEvent, 16)
		f.events[address] = ch
	}
	return ch, nil
}

// SeedChannel installs a channel directly, for test setup.
func (f *FakeLedger) SeedChannel(ch *paychan.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch.Clone()
}

// SetFeeDrops overrides the fee the fake reports from GetFeeDrops.
func (f *FakeLedger) SetFeeDrops(drops uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeDrops = uint256.NewInt(drops)
}

// SetSubmitError makes the next PreparePaymentChannelClaim calls fail with
// err, for exercising retry/failure-counting paths. Pass nil to clear it.
func (f *FakeLedger) SetSubmitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

func (f *FakeLedger) GetPaymentChannel(_ context.Context, channelID string) (*paychan.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return ch.Clone(), nil
}

func (f *FakeLedger) GetFeeDrops(context.Context) (*uint256.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(uint256.Int).Set(f.feeDrops), nil
}

func (f *FakeLedger) PreparePaymentChannelCreate(_ context.Context, req ChannelCreateRequest) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTag++
	id := deriveChannelID(req.Destination, req.PublicKey, f.nextTag)
	f.channels[id] = &paychan.Channel{
		ID:          id,
		Amount:      new(uint256.Int).Set(req.Amount),
		Balance:     uint256.NewInt(0),
		PublicKey:   req.PublicKey,
		Destination: req.Destination,
		SettleDelay: req.SettleDelay,
	}
	return &TxResult{
		Hash:         hex.EncodeToString(ethcrypto.Keccak256([]byte(id))),
		SourceTag:    req.SourceTag,
		EngineResult: "tesSUCCESS",
		ChannelID:    id,
	}, nil
}

func (f *FakeLedger) PreparePaymentChannelClaim(_ context.Context, req ChannelClaimRequest) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	ch, ok := f.channels[req.ChannelID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	if req.Balance.Cmp(ch.Amount) > 0 {
		return nil, &TerminalError{EngineResult: "temMALFORMED"}
	}
	ch.Balance = new(uint256.Int).Set(req.Balance)
	if req.Close {
		delete(f.channels, req.ChannelID)
	}
	return &TxResult{
		Hash:         hex.EncodeToString(ethcrypto.Keccak256([]byte(req.ChannelID), []byte{byte(req.Balance.Uint64())})),
		SourceTag:    req.SourceTag,
		EngineResult: "tesSUCCESS",
	}, nil
}

func (f *FakeLedger) PreparePaymentChannelFund(_ context.Context, req ChannelFundRequest) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[req.ChannelID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	ch.Amount = new(uint256.Int).Add(ch.Amount, req.Amount)
	return &TxResult{
		Hash:         hex.EncodeToString(ethcrypto.Keccak256([]byte(req.ChannelID), []byte("fund"))),
		SourceTag:    req.SourceTag,
		EngineResult: "tesSUCCESS",
	}, nil
}

func deriveChannelID(destination, publicKey string, tag uint32) string {
	var tagBytes [4]byte
	binary.BigEndian.PutUint32(tagBytes[:], tag)
	sum := ethcrypto.Keccak256([]byte(destination), []byte(publicKey), tagBytes[:])
	return fmt.Sprintf("%X", sum)
}

var _ Client = (*FakeLedger)(nil)
