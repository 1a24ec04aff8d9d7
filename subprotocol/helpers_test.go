package subprotocol

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/ledger"
	"xrpchan/paychan"
	"xrpchan/storage"
	"xrpchan/store"
)

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	return raw
}

func signWith(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// memIndex is a minimal in-memory ChannelIndex for tests that don't need the
// store-backed implementation plugin.storeChannelIndex provides.
type memIndex struct {
	owners map[string]string
}

func newMemIndex() *memIndex {
	return &memIndex{owners: make(map[string]string)}
}

func (m *memIndex) Bind(channelID, accountID string) error {
	if owner, ok := m.owners[channelID]; ok && owner != accountID {
		return &ErrChannelBoundElsewhere{ChannelID: channelID, Owner: owner, Attempted: accountID}
	}
	m.owners[channelID] = accountID
	return nil
}

func (m *memIndex) Lookup(channelID string) (string, bool) {
	owner, ok := m.owners[channelID]
	return owner, ok
}

const testServerAddress = "rServerAddress"
const testServerSecret = "sServerSecret"

func hexChannelID(tag byte) string {
	raw := make([]byte, 32)
	raw[31] = tag
	return hex.EncodeToString(raw)
}

func hexPublicKey(t *testing.T, seed []byte) string {
	t.Helper()
	pub, _, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("derive keypair: %v", err)
	}
	return hex.EncodeToString(append([]byte{0xED}, pub...))
}

// newAccount builds an account with the given deps and drives it to
// whatever state its persisted fields imply, without a channel present.
func newAccount(t *testing.T, accountID string, fake *ledger.FakeLedger, w *store.Wrapper) *account.Account {
	t.Helper()
	deps := account.Deps{
		Store:         w,
		Ledger:        fake,
		ServerAddress: testServerAddress,
		ServerSecret:  testServerSecret,
		CurrencyScale: 6,
	}
	a := account.New(accountID, deps)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a
}

func newStore(t *testing.T) *store.Wrapper {
	t.Helper()
	w := store.New(storage.NewMemStore(), nil)
	t.Cleanup(w.Close)
	return w
}

func newFakeAndStore(t *testing.T) (*ledger.FakeLedger, *store.Wrapper) {
	t.Helper()
	return ledger.NewFakeLedger(), newStore(t)
}

// newReadyAccount mirrors claimengine's helper: an account with both an
// incoming channel (owned by peerSeed) and a client channel (owned by the
// server's own derived seed), reached via the normal Connect lifecycle.
func newReadyAccount(t *testing.T, accountID string, peerSeed []byte, incomingAmountDrops, clientAmountDrops uint64) (*account.Account, *ledger.FakeLedger, *store.Wrapper) {
	t.Helper()
	fake := ledger.NewFakeLedger()
	w := newStore(t)

	incomingChannelID := hexChannelID(0x01)
	clientChannelID := hexChannelID(0x02)
	serverSeed := crypto.DeriveAccountSeed(testServerSecret, accountID)

	fake.SeedChannel(&paychan.Channel{
		ID:          incomingChannelID,
		Amount:      uint256.NewInt(incomingAmountDrops),
		Balance:     uint256.NewInt(0),
		PublicKey:   hexPublicKey(t, peerSeed),
		Destination: testServerAddress,
		SettleDelay: paychan.MinSettleDelay,
	})
	fake.SeedChannel(&paychan.Channel{
		ID:          clientChannelID,
		Amount:      uint256.NewInt(clientAmountDrops),
		Balance:     uint256.NewInt(0),
		PublicKey:   hexPublicKey(t, serverSeed),
		Destination: "rPeerAddress",
		SettleDelay: paychan.MinSettleDelay,
	})

	w.Set(accountID, "")
	w.Set(accountID+":channel", incomingChannelID)
	w.Set(accountID+":client_channel", clientChannelID)

	a := newAccount(t, accountID, fake, w)
	if a.State() != account.StateReady {
		t.Fatalf("expected READY, got %s", a.GetStateString())
	}
	return a, fake, w
}
