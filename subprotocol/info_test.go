package subprotocol

import (
	"encoding/json"
	"testing"
)

func TestHandleInfoHidesUnestablishedChannels(t *testing.T) {
	fake, w := newFakeAndStore(t)
	a := newAccount(t, "peer1", fake, w)
	if got := a.GetStateString(); got != "ESTABLISHING_CHANNEL" {
		t.Fatalf("expected ESTABLISHING_CHANNEL, got %s", got)
	}

	body, err := HandleInfo(a)
	if err != nil {
		t.Fatalf("HandleInfo: %v", err)
	}
	var resp InfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Channel != "" || resp.ClientChannel != "" {
		t.Fatalf("expected no channels revealed, got %+v", resp)
	}
	if resp.Address != testServerAddress || resp.Account != "peer1" || resp.CurrencyScale != 6 {
		t.Fatalf("unexpected info response: %+v", resp)
	}
}

func TestHandleInfoRevealsEstablishedChannels(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	body, err := HandleInfo(a)
	if err != nil {
		t.Fatalf("HandleInfo: %v", err)
	}
	var resp InfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Channel == "" || resp.ClientChannel == "" {
		t.Fatalf("expected both channels revealed, got %+v", resp)
	}
}

func TestHandleLastClaimRoundTrips(t *testing.T) {
	a, _, _ := newReadyAccount(t, "peer1", []byte("peer-seed-01-peer-seed-01-peers!"), 5_000_000, 5_000_000)

	body, err := HandleLastClaim(a)
	if err != nil {
		t.Fatalf("HandleLastClaim: %v", err)
	}
	if string(body) != `{"amount":"","signature":""}` {
		t.Fatalf("unexpected empty claim encoding: %s", body)
	}
}
