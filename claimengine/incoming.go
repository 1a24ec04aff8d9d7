package claimengine

import (
	"context"
	"encoding/hex"
	"fmt"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/observability/metrics"
	"xrpchan/xrpamount"
)

// HandleClaim verifies and, if valid and larger than the current one, stores
// a claim the peer sent over the claim sub-protocol (spec.md §4.7). The
// claim's amount is denominated in the account's base currency unit,
// matching how it travels on the wire and in the store.
//
// Three outcomes are possible, and only the last one is an error:
//   - the claim is stored because it strictly increases the account's claim
//     high-water mark;
//   - the claim is a no-op because it is not larger than the current one;
//   - the claim is rejected because it is malformed or fails signature or
//     capacity checks, in which case HandleClaim returns a non-nil error.
func HandleClaim(ctx context.Context, a *account.Account, claimAmount string, signature string, m *metrics.Metrics) error {
	if signature == "" {
		return fmt.Errorf("invalid claim: signature required")
	}

	amount, err := xrpamount.FromString(claimAmount)
	if err != nil {
		return fmt.Errorf("invalid claim: malformed amount: %w", err)
	}

	channelID, ok := a.IncomingChannelID()
	if !ok {
		return fmt.Errorf("invalid claim: account %s has no incoming channel", a.ID)
	}
	pubKey, ok := a.IncomingPublicKey()
	if !ok {
		return fmt.Errorf("invalid claim: account %s has no incoming channel public key", a.ID)
	}

	scale := a.Deps().CurrencyScale
	dropAmount := xrpamount.ToDropsRoundDown(amount, scale)
	if !dropAmount.IsUint64() {
		return fmt.Errorf("invalid claim: amount overflows a drop count")
	}

	var rawChannelID [32]byte
	if err := decodeChannelID(channelID, &rawChannelID); err != nil {
		return fmt.Errorf("invalid claim: %w", err)
	}

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("invalid claim: malformed signature: %w", err)
	}
	if err := crypto.VerifyClaim(pubKey, rawChannelID, dropAmount.Uint64(), sigBytes); err != nil {
		return err
	}

	channelDrops, ok := a.IncomingPaychanAmountDrops()
	if !ok {
		return fmt.Errorf("invalid claim: account %s has no incoming channel", a.ID)
	}
	if dropAmount.Cmp(channelDrops) > 0 {
		return fmt.Errorf("invalid claim: claimed amount %s exceeds channel amount %s", dropAmount, channelDrops)
	}

	current, err := a.IncomingClaimAmount()
	if err != nil {
		return fmt.Errorf("claimengine: parse current claim: %w", err)
	}
	if amount.Cmp(current) <= 0 {
		// Not an error: an out-of-date or duplicate claim is simply ignored
		// (spec.md §4.7 step 5, monotonic high-water mark).
		return nil
	}

	if err := a.SetIncomingClaim(ctx, account.Claim{Amount: amount.String(), Signature: signature}); err != nil {
		return err
	}
	if m != nil {
		m.ClaimsAccepted.WithLabelValues(a.ID).Inc()
	}
	return nil
}

// decodeChannelID decodes a hex-encoded 32-byte XRPL ledger object id into
// dst, rejecting anything that is not exactly 32 bytes.
func decodeChannelID(channelID string, dst *[32]byte) error {
	raw, err := hex.DecodeString(channelID)
	if err != nil {
		return fmt.Errorf("malformed channel id: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("channel id must be 32 bytes, got %d", len(raw))
	}
	copy(dst[:], raw)
	return nil
}
