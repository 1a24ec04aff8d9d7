package crypto

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// claimPrefix is the canonical prefix XRPL payment-channel claims are signed
// under, so a claim signature can never be replayed as a signature over some
// other payload type.
var claimPrefix = []byte("CLM\x00")

// ed25519PubKeyPrefix marks an XRPL public key as an ed25519 key. Channel
// public keys arrive with this one-byte prefix and must be stripped before
// the raw 32-byte ed25519 key is usable for verification.
const ed25519PubKeyPrefix = 0xED

// ErrInvalidSignature is returned by VerifyClaim when the signature does not
// verify against the claim's public key.
var ErrInvalidSignature = errors.New("invalid claim: invalid signature")

// EncodeClaim canonically encodes a (channel-id, drop-amount) tuple for
// ed25519 signing/verification (spec.md §3, §8 "encoded_claim(decode(x)) = x").
func EncodeClaim(channelID [32]byte, dropAmount uint64) []byte {
	buf := make([]byte, 0, len(claimPrefix)+32+8)
	buf = append(buf, claimPrefix...)
	buf = append(buf, channelID[:]...)
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], dropAmount)
	buf = append(buf, amt[:]...)
	return buf
}

// KeyPairFromSeed derives the ed25519 keypair used to sign outgoing claims
// from a per-account seed produced by DeriveAccountSeed.
func KeyPairFromSeed(seed []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(seed) < ed25519.SeedSize {
		return nil, nil, fmt.Errorf("crypto: seed too short, need %d bytes got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// SignClaim signs the canonical encoding of (channelID, dropAmount) with the
// private key derived from the account's signing seed (spec.md §4.6).
func SignClaim(priv ed25519.PrivateKey, channelID [32]byte, dropAmount uint64) []byte {
	return ed25519.Sign(priv, EncodeClaim(channelID, dropAmount))
}

// StripPublicKeyPrefix removes the one-byte 0xED marker XRPL prepends to
// ed25519 public keys, if present.
func StripPublicKeyPrefix(pubKey []byte) []byte {
	if len(pubKey) == ed25519.PublicKeySize+1 && pubKey[0] == ed25519PubKeyPrefix {
		return pubKey[1:]
	}
	return pubKey
}

// VerifyClaim verifies a claim signature against the channel's declared
// public key (spec.md §4.7 step 3). pubKeyHex may carry the 0xED prefix.
func VerifyClaim(pubKeyHex string, channelID [32]byte, dropAmount uint64, signature []byte) error {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid claim: malformed public key: %w", err)
	}
	pub := StripPublicKeyPrefix(raw)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid claim: unexpected public key length %d", len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), EncodeClaim(channelID, dropAmount), signature) {
		return ErrInvalidSignature
	}
	return nil
}
