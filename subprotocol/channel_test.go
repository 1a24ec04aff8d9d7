package subprotocol

import (
	"context"
	"testing"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/paychan"
)

func TestHandleChannelBindsAndAdvancesToEstablishingClientChannel(t *testing.T) {
	fake, w := newFakeAndStore(t)
	a := newAccount(t, "peer1", fake, w)
	if a.State() != account.StateEstablishingChannel {
		t.Fatalf("expected ESTABLISHING_CHANNEL, got %s", a.GetStateString())
	}

	peerSeed := []byte("peer-seed-01-peer-seed-01-peers!")
	_, priv, err := crypto.KeyPairFromSeed(peerSeed)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	channelIDHex := hexChannelID(0x01)
	var channelID [32]byte
	copy(channelID[:], mustDecodeHex(t, channelIDHex))

	fake.SeedChannel(&paychan.Channel{
		ID:          channelIDHex,
		Amount:      uint256.NewInt(5_000_000),
		Balance:     uint256.NewInt(0),
		PublicKey:   hexPublicKey(t, peerSeed),
		Destination: testServerAddress,
		SettleDelay: paychan.MinSettleDelay,
	})

	peerFullAddress := "test.peer1"
	sig := crypto.EncodeChannelProof(channelID, peerFullAddress)
	signature := signWith(priv, sig)

	index := newMemIndex()
	if err := HandleChannel(context.Background(), fake, index, a, channelIDHex, signature, peerFullAddress); err != nil {
		t.Fatalf("HandleChannel: %v", err)
	}
	// A brand-new account has no client channel of its own yet, so binding its
	// first incoming channel must hand off to establishing the client channel
	// next (the symmetric pair), not straight to READY.
	if a.State() != account.StateEstablishingClientChannel {
		t.Fatalf("expected ESTABLISHING_CLIENT_CHANNEL after channel bind, got %s", a.GetStateString())
	}
	if owner, ok := index.Lookup(channelIDHex); !ok || owner != "peer1" {
		t.Fatalf("expected index bound to peer1, got %s ok=%v", owner, ok)
	}
}

// TestHandleChannelRebindWhileReadyStaysReady covers the other PrepareChannel
// path: a peer re-declaring its incoming channel (e.g. after a reconnect)
// while the account already has a client channel and is READY must stay
// READY, since nothing about the client side changed.
func TestHandleChannelRebindWhileReadyStaysReady(t *testing.T) {
	peerSeed := []byte("peer-seed-01-peer-seed-01-peers!")
	a, fake, _ := newReadyAccount(t, "peer1", peerSeed, 5_000_000, 5_000_000)

	channelID, ok := a.IncomingChannelID()
	if !ok {
		t.Fatalf("expected an incoming channel")
	}
	var rawID [32]byte
	copy(rawID[:], mustDecodeHex(t, channelID))

	_, priv, err := crypto.KeyPairFromSeed(peerSeed)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	peerFullAddress := "test.peer1"
	sig := signWith(priv, crypto.EncodeChannelProof(rawID, peerFullAddress))

	index := newMemIndex()
	if err := HandleChannel(context.Background(), fake, index, a, channelID, sig, peerFullAddress); err != nil {
		t.Fatalf("HandleChannel: %v", err)
	}
	if a.State() != account.StateReady {
		t.Fatalf("expected account to remain READY after rebind, got %s", a.GetStateString())
	}
}

func TestHandleChannelRejectsBadSignature(t *testing.T) {
	fake, w := newFakeAndStore(t)
	a := newAccount(t, "peer1", fake, w)

	peerSeed := []byte("peer-seed-01-peer-seed-01-peers!")
	channelIDHex := hexChannelID(0x01)

	fake.SeedChannel(&paychan.Channel{
		ID:          channelIDHex,
		Amount:      uint256.NewInt(5_000_000),
		Balance:     uint256.NewInt(0),
		PublicKey:   hexPublicKey(t, peerSeed),
		Destination: testServerAddress,
		SettleDelay: paychan.MinSettleDelay,
	})

	index := newMemIndex()
	badSignature := make([]byte, 64)
	if err := HandleChannel(context.Background(), fake, index, a, channelIDHex, badSignature, "test.peer1"); err == nil {
		t.Fatalf("expected signature verification failure")
	}
	if a.State() != account.StateEstablishingChannel {
		t.Fatalf("expected state unchanged on failure, got %s", a.GetStateString())
	}
}

func TestHandleChannelRejectsSecondOwner(t *testing.T) {
	fake, w := newFakeAndStore(t)
	a1 := newAccount(t, "peer1", fake, w)
	a2 := newAccount(t, "peer2", fake, w)

	peerSeed := []byte("peer-seed-01-peer-seed-01-peers!")
	_, priv, _ := crypto.KeyPairFromSeed(peerSeed)
	channelIDHex := hexChannelID(0x01)
	var channelID [32]byte
	copy(channelID[:], mustDecodeHex(t, channelIDHex))

	fake.SeedChannel(&paychan.Channel{
		ID:          channelIDHex,
		Amount:      uint256.NewInt(5_000_000),
		Balance:     uint256.NewInt(0),
		PublicKey:   hexPublicKey(t, peerSeed),
		Destination: testServerAddress,
		SettleDelay: paychan.MinSettleDelay,
	})

	index := newMemIndex()
	sig1 := signWith(priv, crypto.EncodeChannelProof(channelID, "test.peer1"))
	if err := HandleChannel(context.Background(), fake, index, a1, channelIDHex, sig1, "test.peer1"); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	sig2 := signWith(priv, crypto.EncodeChannelProof(channelID, "test.peer2"))
	err := HandleChannel(context.Background(), fake, index, a2, channelIDHex, sig2, "test.peer2")
	if err == nil {
		t.Fatalf("expected second bind to a different account to fail")
	}
}
