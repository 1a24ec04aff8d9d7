package subprotocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/claimengine"
	"xrpchan/ilp"
)

// jsonCodec is a test-only ilp.Codec that (de)serializes packets as JSON
// instead of the real OER wire format, standing in for the external codec
// collaborator.
type jsonCodec struct{}

type wirePrepare struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	ExpiresInMS int64  `json:"expiresInMs"`
}

func (jsonCodec) DecodePrepare(raw []byte) (*ilp.Prepare, error) {
	var wp wirePrepare
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(wp.Amount)
	if err != nil {
		return nil, err
	}
	p := &ilp.Prepare{Destination: wp.Destination, Amount: amount}
	if wp.ExpiresInMS > 0 {
		p.ExpiresAt = time.Now().Add(time.Duration(wp.ExpiresInMS) * time.Millisecond)
	}
	return p, nil
}

func (jsonCodec) EncodeFulfill(f *ilp.Fulfill) ([]byte, error) {
	return json.Marshal(struct {
		Data []byte `json:"data"`
	}{f.Data})
}

func (jsonCodec) EncodeReject(r *ilp.Reject) ([]byte, error) {
	return json.Marshal(r)
}

func fixedDataHandler(fulfill *ilp.Fulfill, reject *ilp.Reject, err error) DataHandler {
	return func(ctx context.Context, p *ilp.Prepare) (*ilp.Fulfill, *ilp.Reject, error) {
		return fulfill, reject, err
	}
}

func TestILPEngineFulfillsAdmittedPrepare(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	var moneyCalls int
	engine := ILPEngine{
		Codec: jsonCodec{},
		Admission: claimengine.AdmissionPolicy{
			CurrencyScale: 6,
		},
		Data: fixedDataHandler(&ilp.Fulfill{Data: []byte("ok")}, nil, nil),
		Money: func(ctx context.Context, acc *account.Account, amount uint64) {
			moneyCalls++
		},
	}

	raw, _ := json.Marshal(wirePrepare{Destination: "g.peer2", Amount: "1000", ExpiresInMS: 5000})
	reply, err := engine.HandlePacket(context.Background(), a, raw)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(reply) == 0 {
		t.Fatalf("expected non-empty reply")
	}
	if moneyCalls != 1 {
		t.Fatalf("expected Money to fire once, got %d", moneyCalls)
	}
	if got := a.PreparedSnapshot(); got.Uint64() != 1000 {
		t.Fatalf("expected prepared amount to remain at 1000 after fulfill, got %s", got)
	}
}

func TestILPEngineRollsBackPreparedOnReject(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	engine := ILPEngine{
		Codec:     jsonCodec{},
		Admission: claimengine.AdmissionPolicy{CurrencyScale: 6},
		Data:      fixedDataHandler(nil, &ilp.Reject{Code: "F99", Message: "no route"}, nil),
	}

	raw, _ := json.Marshal(wirePrepare{Destination: "g.peer2", Amount: "1000", ExpiresInMS: 5000})
	if _, err := engine.HandlePacket(context.Background(), a, raw); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if got := a.PreparedSnapshot(); !got.IsZero() {
		t.Fatalf("expected prepared amount rolled back to zero, got %s", got)
	}
}

func TestILPEngineOpportunisticallySettlesOnInsufficientLiquidityReject(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	var moneyCalls []uint64
	engine := ILPEngine{
		Codec:     jsonCodec{},
		Admission: claimengine.AdmissionPolicy{CurrencyScale: 6},
		Data: fixedDataHandler(nil, &ilp.Reject{
			Code:    ilp.CodeInsufficientLiquidity,
			Message: "upstream is short on liquidity",
		}, nil),
		Money: func(ctx context.Context, acc *account.Account, amount uint64) {
			moneyCalls = append(moneyCalls, amount)
		},
	}

	raw, _ := json.Marshal(wirePrepare{Destination: "g.peer2", Amount: "1000", ExpiresInMS: 5000})
	reply, err := engine.HandlePacket(context.Background(), a, raw)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	var reject ilp.Reject
	if err := json.Unmarshal(reply, &reject); err != nil {
		t.Fatalf("unmarshal reject: %v", err)
	}
	if reject.Code != ilp.CodeInsufficientLiquidity {
		t.Fatalf("expected T04 passed through, got %s", reject.Code)
	}
	if len(moneyCalls) != 1 {
		t.Fatalf("expected exactly one opportunistic settlement attempt, got %d", len(moneyCalls))
	}
	if moneyCalls[0] != 0 {
		t.Fatalf("expected opportunistic settlement to fold in zero new amount, got %d", moneyCalls[0])
	}
	if got := a.PreparedSnapshot(); !got.IsZero() {
		t.Fatalf("expected prepared amount rolled back to zero, got %s", got)
	}
}

func TestILPEnginePeerConfigShortCircuits(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	engine := ILPEngine{
		Codec:     jsonCodec{},
		Admission: claimengine.AdmissionPolicy{CurrencyScale: 6},
		Data: func(ctx context.Context, p *ilp.Prepare) (*ilp.Fulfill, *ilp.Reject, error) {
			t.Fatalf("data handler should not be invoked for peer.config")
			return nil, nil, nil
		},
	}

	raw, _ := json.Marshal(wirePrepare{Destination: ilp.PeerConfigDestination, Amount: "0"})
	reply, err := engine.HandlePacket(context.Background(), a, raw)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(reply) == 0 {
		t.Fatalf("expected an ILDCP fulfill reply")
	}
}

func TestILPEngineRejectsWhenNotReady(t *testing.T) {
	fake, w := newFakeAndStore(t)
	a := newAccount(t, "peer1", fake, w)

	engine := ILPEngine{Codec: jsonCodec{}}
	raw, _ := json.Marshal(wirePrepare{Destination: "g.peer2", Amount: "1000"})
	reply, err := engine.HandlePacket(context.Background(), a, raw)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	var reject ilp.Reject
	if err := json.Unmarshal(reply, &reject); err != nil {
		t.Fatalf("unmarshal reject: %v", err)
	}
	if reject.Code != ilp.CodeUnreachable {
		t.Fatalf("expected F02, got %s", reject.Code)
	}
}
