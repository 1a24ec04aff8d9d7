package subprotocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"xrpchan/account"
	"xrpchan/claimengine"
	"xrpchan/ledger"
	"xrpchan/observability/logging"
	"xrpchan/observability/metrics"
)

// Dispatcher wires together the handlers spec.md §4.4 lists, examined in
// order on every peer message. Each sub-protocol entry is independent and
// may co-occur; the caller collects the returned Data entries into the
// reply message.
type Dispatcher struct {
	Ledger     ledger.Client
	Submitter  *ledger.Submitter
	Index      ChannelIndex
	FundPolicy FundChannelPolicy
	ILP        ILPEngine
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func (d Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// claimPayload is the wire shape of the `claim`/`last_claim` sub-protocols.
type claimPayload struct {
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

// Dispatch runs every recognized sub-protocol present on msg against a, in
// the order spec.md §4.4 specifies, and returns the reply Data entries.
// accountFullAddress is the peer's declared ILP address, used to verify a
// channel_signature.
func (d Dispatcher) Dispatch(ctx context.Context, a *account.Account, accountFullAddress string, msg Message) ([]Data, error) {
	var reply []Data

	if _, ok := msg.Get(NameLastClaim); ok {
		body, err := HandleLastClaim(a)
		if err != nil {
			return nil, fmt.Errorf("last_claim: %w", err)
		}
		reply = append(reply, Data{Name: NameLastClaim, ContentType: "application/json", Data: body})
	}

	if _, ok := msg.Get(NameInfo); ok {
		body, err := HandleInfo(a)
		if err != nil {
			return nil, fmt.Errorf("info: %w", err)
		}
		reply = append(reply, Data{Name: NameInfo, ContentType: "application/json", Data: body})
	}

	if claimData, ok := msg.Get(NameClaim); ok {
		var payload claimPayload
		if err := json.Unmarshal(claimData.Data, &payload); err != nil {
			return nil, fmt.Errorf("claim: malformed payload: %w", err)
		}
		// A claim signature is a bearer instrument redeemable for its amount
		// against the channel it names, so it is masked before it ever
		// reaches a log line, same as any other secret.
		d.logger().Debug("claim received", slog.String("account_id", a.ID), logging.MaskField("signature", payload.Signature))
		if err := claimengine.HandleClaim(ctx, a, payload.Amount, payload.Signature, d.Metrics); err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}
	}

	if channelData, ok := msg.Get(NameChannel); ok {
		sigData, hasSig := msg.Get(NameChannelSignature)
		if !hasSig {
			return nil, fmt.Errorf("protocol error: channel sub-protocol requires channel_signature")
		}
		channelIDHex := string(channelData.Data)
		if err := HandleChannel(ctx, d.Ledger, d.Index, a, channelIDHex, sigData.Data, accountFullAddress); err != nil {
			return nil, fmt.Errorf("channel: %w", err)
		}
		d.logger().Info("incoming channel bound", slog.String("account_id", a.ID), slog.String("channel_id", channelIDHex))
	}

	if fundData, ok := msg.Get(NameFundChannel); ok {
		// Peer-initiated fund_channel is only for establishing the reverse
		// channel the first time; a top-up is only ever triggered internally,
		// from onCapacityExceeded, never solicited from an unsolicited peer
		// message.
		if state := a.State(); state != account.StateEstablishingClientChannel {
			return nil, fmt.Errorf("protocol error: fund_channel not allowed in state %s", state)
		}
		id, err := HandleFundChannel(ctx, d.Submitter, d.FundPolicy, a, string(fundData.Data), nil)
		if err != nil {
			return nil, fmt.Errorf("fund_channel: %w", err)
		}
		reply = append(reply, Data{Name: NameFundChannel, ContentType: "text/plain", Data: []byte(id)})
	}

	if ilpData, ok := msg.Get(NameILP); ok {
		body, err := d.ILP.HandlePacket(ctx, a, ilpData.Data)
		if err != nil {
			return nil, fmt.Errorf("ilp: %w", err)
		}
		reply = append(reply, Data{Name: NameILP, ContentType: "application/octet-stream", Data: body})
	}

	return reply, nil
}
