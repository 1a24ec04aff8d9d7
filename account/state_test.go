package account

import "testing"

func TestStateStringCoversAllStates(t *testing.T) {
	states := []State{
		StateInitial, StateLoadingChannel, StateEstablishingChannel,
		StatePreparingChannel, StateLoadingClientChannel,
		StateEstablishingClientChannel, StatePreparingClientChannel,
		StateReady, StateBlocked,
	}
	seen := map[string]bool{}
	for _, s := range states {
		str := s.String()
		if str == "" || seen[str] {
			t.Fatalf("unexpected duplicate or empty state string for %d: %q", s, str)
		}
		seen[str] = true
	}
}

func TestAssertStateFailsWithDescriptiveError(t *testing.T) {
	a := &Account{ID: "acct1", state: StateInitial}
	if err := a.assertState("connect", StateInitial); err != nil {
		t.Fatalf("expected assertState to pass for matching state: %v", err)
	}
	err := a.assertState("prepareChannel", StateEstablishingChannel, StateReady)
	if err == nil {
		t.Fatal("expected assertState to fail for mismatched state")
	}
}
