package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// channelProofPrefix separates a channel-ownership proof's signing domain
// from a claim's, so neither signature can be replayed as the other.
var channelProofPrefix = []byte("CHANNEL\x00")

// EncodeChannelProof canonically encodes the (channel-id, account-address)
// tuple a peer signs to prove it controls the private key behind a
// channel's declared public key (spec.md §4.3 "channel_signature").
func EncodeChannelProof(channelID [32]byte, accountFullAddress string) []byte {
	buf := make([]byte, 0, len(channelProofPrefix)+32+len(accountFullAddress))
	buf = append(buf, channelProofPrefix...)
	buf = append(buf, channelID[:]...)
	buf = append(buf, []byte(accountFullAddress)...)
	return buf
}

// VerifyChannelProof verifies a channel_signature against the channel's
// declared public key.
func VerifyChannelProof(pubKeyHex string, channelID [32]byte, accountFullAddress string, signature []byte) error {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid channel proof: malformed public key: %w", err)
	}
	pub := StripPublicKeyPrefix(raw)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid channel proof: unexpected public key length %d", len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), EncodeChannelProof(channelID, accountFullAddress), signature) {
		return ErrInvalidSignature
	}
	return nil
}
