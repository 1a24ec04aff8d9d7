package claimengine

import (
	"context"
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

const testServerAddress = "rServerAddress"
const testServerSecret = "sServerSecret"

// hexChannelID returns a deterministic, valid-looking 32-byte channel id.
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

// newReadyAccount builds an account with both an incoming channel (funded by
// a peer keypair derived from peerSeed) and a client channel (funded by this
// server's own derived signing key), reaching READY via the normal Connect
// lifecycle rather than by poking private fields.
func newReadyAccount(t *testing.T, peerSeed []byte, incomingAmountDrops, clientAmountDrops uint64) (*account.Account, *ledger.FakeLedger) {
	t.Helper()
	fake := ledger.NewFakeLedger()
	w := store.New(storage.NewMemStore(), nil)
	t.Cleanup(w.Close)

	accountID := "peer1"
	deps := account.Deps{
		Store:         w,
		Ledger:        fake,
		ServerAddress: testServerAddress,
		ServerSecret:  testServerSecret,
		CurrencyScale: 6,
	}

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

	a := account.New(accountID, deps)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if a.State() != account.StateReady {
		t.Fatalf("expected READY, got %s", a.GetStateString())
	}
	return a, fake
}
