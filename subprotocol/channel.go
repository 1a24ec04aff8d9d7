package subprotocol

import (
	"context"
	"encoding/hex"
	"fmt"

	"xrpchan/account"
	"xrpchan/crypto"
	"xrpchan/ledger"
)

// HandleChannel implements spec.md §4.4 item 3 and §4.3's channel_signature
// requirement: adopt or refresh the peer's declared incoming channel. Allowed
// only from READY or ESTABLISHING_CHANNEL (enforced by account.PrepareChannel
// via its own state assertion).
func HandleChannel(ctx context.Context, ledgerClient ledger.Client, index ChannelIndex, a *account.Account, channelIDHex string, signature []byte, accountFullAddress string) error {
	state := a.State()
	if state != account.StateReady && state != account.StateEstablishingChannel {
		return fmt.Errorf("protocol error: channel sub-protocol not allowed in state %s", state)
	}

	ch, err := ledgerClient.GetPaymentChannel(ctx, channelIDHex)
	if err != nil {
		return fmt.Errorf("channel sub-protocol: %w", err)
	}

	var channelID [32]byte
	raw, err := hex.DecodeString(channelIDHex)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("protocol error: malformed channel id")
	}
	copy(channelID[:], raw)

	if err := crypto.VerifyChannelProof(ch.PublicKey, channelID, accountFullAddress, signature); err != nil {
		return err
	}

	if err := index.Bind(channelIDHex, a.ID); err != nil {
		return err
	}

	return a.PrepareChannel(ctx, ch)
}
