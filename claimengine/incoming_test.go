package claimengine

import (
	"context"
	"encoding/hex"
	"testing"

	"xrpchan/crypto"
)

func signTestClaim(t *testing.T, seed []byte, channelID string, dropAmount uint64) string {
	t.Helper()
	var raw [32]byte
	decoded, err := hex.DecodeString(channelID)
	if err != nil || len(decoded) != 32 {
		t.Fatalf("bad channel id fixture: %v", err)
	}
	copy(raw[:], decoded)
	_, priv, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("derive keypair: %v", err)
	}
	sig := crypto.SignClaim(priv, raw, dropAmount)
	return hex.EncodeToString(sig)
}

func TestHandleClaimAcceptsFirstValidClaim(t *testing.T) {
	peerSeed := []byte("peer-seed-0000000000000000000011")
	a, _ := newReadyAccount(t, peerSeed, 10_000_000, 10_000_000)
	channelID, _ := a.IncomingChannelID()

	sig := signTestClaim(t, peerSeed, channelID, 1_000)
	if err := HandleClaim(context.Background(), a, "1000", sig, nil); err != nil {
		t.Fatalf("HandleClaim: %v", err)
	}
	got, err := a.IncomingClaimAmount()
	if err != nil {
		t.Fatalf("IncomingClaimAmount: %v", err)
	}
	if got.Uint64() != 1000 {
		t.Fatalf("expected claim amount 1000, got %s", got)
	}
}

func TestHandleClaimIgnoresLowerClaim(t *testing.T) {
	peerSeed := []byte("peer-seed-0000000000000000000012")
	a, _ := newReadyAccount(t, peerSeed, 10_000_000, 10_000_000)
	channelID, _ := a.IncomingChannelID()

	sig1 := signTestClaim(t, peerSeed, channelID, 2_000)
	if err := HandleClaim(context.Background(), a, "2000", sig1, nil); err != nil {
		t.Fatalf("HandleClaim (first): %v", err)
	}

	sig2 := signTestClaim(t, peerSeed, channelID, 1_000)
	if err := HandleClaim(context.Background(), a, "1000", sig2, nil); err != nil {
		t.Fatalf("HandleClaim (lower, should be a no-op not an error): %v", err)
	}

	got, _ := a.IncomingClaimAmount()
	if got.Uint64() != 2000 {
		t.Fatalf("expected high-water mark to remain 2000, got %s", got)
	}
}

func TestHandleClaimRejectsBadSignature(t *testing.T) {
	peerSeed := []byte("peer-seed-0000000000000000000013")
	wrongSeed := []byte("wrong-seed-0000000000000000000013")
	a, _ := newReadyAccount(t, peerSeed, 10_000_000, 10_000_000)
	channelID, _ := a.IncomingChannelID()

	sig := signTestClaim(t, wrongSeed, channelID, 1_000)
	if err := HandleClaim(context.Background(), a, "1000", sig, nil); err == nil {
		t.Fatal("expected signature verification failure")
	}
	got, _ := a.IncomingClaimAmount()
	if got.Uint64() != 0 {
		t.Fatalf("expected claim amount to remain 0, got %s", got)
	}
}

func TestHandleClaimRejectsOverChannelCapacity(t *testing.T) {
	peerSeed := []byte("peer-seed-0000000000000000000014")
	a, _ := newReadyAccount(t, peerSeed, 1_000, 10_000_000)
	channelID, _ := a.IncomingChannelID()

	sig := signTestClaim(t, peerSeed, channelID, 1_001)
	if err := HandleClaim(context.Background(), a, "1001", sig, nil); err == nil {
		t.Fatal("expected capacity rejection")
	}
}

func TestHandleClaimRejectsMissingSignature(t *testing.T) {
	peerSeed := []byte("peer-seed-0000000000000000000015")
	a, _ := newReadyAccount(t, peerSeed, 10_000_000, 10_000_000)

	if err := HandleClaim(context.Background(), a, "1000", "", nil); err == nil {
		t.Fatal("expected missing-signature rejection")
	}
}
