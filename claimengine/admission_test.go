package claimengine

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrpchan/ilp"
)

func TestCheckPrepare(t *testing.T) {
	cases := []struct {
		name          string
		peerSeed      []byte
		incomingDrops uint64
		clientDrops   uint64
		policy        AdmissionPolicy
		amount        *uint256.Int
		wantCode      string
		wantPrepared  uint64
	}{
		{
			name:          "within bandwidth and capacity",
			peerSeed:      []byte("peer-seed-0000000000000000000001"),
			incomingDrops: 10_000_000,
			clientDrops:   10_000_000,
			policy:        AdmissionPolicy{Bandwidth: uint256.NewInt(1_000_000), CurrencyScale: 6},
			amount:        uint256.NewInt(1_000),
			wantCode:      "",
			wantPrepared:  1_000,
		},
		{
			name:          "over max packet amount",
			peerSeed:      []byte("peer-seed-0000000000000000000002"),
			incomingDrops: 10_000_000,
			clientDrops:   10_000_000,
			policy:        AdmissionPolicy{MaxPacketAmount: uint256.NewInt(500), CurrencyScale: 6},
			amount:        uint256.NewInt(501),
			wantCode:      ilp.CodeAmountTooLarge,
			wantPrepared:  0,
		},
		{
			name:          "over bandwidth",
			peerSeed:      []byte("peer-seed-0000000000000000000003"),
			incomingDrops: 10_000_000,
			clientDrops:   10_000_000,
			policy:        AdmissionPolicy{Bandwidth: uint256.NewInt(100), CurrencyScale: 6},
			amount:        uint256.NewInt(101),
			wantCode:      ilp.CodeInsufficientLiquidity,
			wantPrepared:  0,
		},
		{
			name:          "over channel capacity",
			peerSeed:      []byte("peer-seed-0000000000000000000004"),
			incomingDrops: 1_000,
			clientDrops:   10_000_000,
			policy:        AdmissionPolicy{CurrencyScale: 6},
			amount:        uint256.NewInt(1_001),
			wantCode:      ilp.CodeInsufficientLiquidity,
			wantPrepared:  0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newReadyAccount(t, tc.peerSeed, tc.incomingDrops, tc.clientDrops)

			err := tc.policy.CheckPrepare(a, tc.amount)
			if tc.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				rej, ok := err.(*ilp.RejectError)
				require.True(t, ok, "expected a *ilp.RejectError, got %T", err)
				assert.Equal(t, tc.wantCode, rej.Code)
			}
			assert.Equal(t, tc.wantPrepared, a.PreparedSnapshot().Uint64())
		})
	}
}

func TestRollbackRejectUndoesPrepared(t *testing.T) {
	a, _ := newReadyAccount(t, []byte("peer-seed-0000000000000000000005"), 10_000_000, 10_000_000)
	policy := AdmissionPolicy{CurrencyScale: 6}

	require.NoError(t, policy.CheckPrepare(a, uint256.NewInt(1_000)))
	RollbackReject(a, uint256.NewInt(1_000))
	assert.Equal(t, uint64(0), a.PreparedSnapshot().Uint64())
}
