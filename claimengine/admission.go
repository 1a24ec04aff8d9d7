// Package claimengine implements the claim-accounting and admission-control
// logic of spec.md §4.5-§4.7: whether an incoming PREPARE may be forwarded,
// how incoming claims are verified and stored, and how outgoing claims are
// signed and settled.
package claimengine

import (
	"fmt"

	"github.com/holiman/uint256"

	"xrpchan/account"
	"xrpchan/ilp"
	"xrpchan/observability/metrics"
	"xrpchan/xrpamount"
)

// AdmissionPolicy carries the configurable limits spec.md §6 recognizes for
// incoming PREPARE admission.
type AdmissionPolicy struct {
	MaxPacketAmount *uint256.Int // base units; spec default is unbounded
	Bandwidth       *uint256.Int // base units, spec.md §6 "maxBalance / bandwidth"
	CurrencyScale   uint8
	Metrics         *metrics.Metrics
}

// CheckPrepare runs the four ordered checks of spec.md §4.5 and, on success,
// advances the account's prepared amount. The first failing check wins.
func (p AdmissionPolicy) CheckPrepare(a *account.Account, amount *uint256.Int) error {
	if a.State() != account.StateReady {
		return ilp.NewUnreachableError(fmt.Sprintf("account %s is not ready", a.ID))
	}

	if p.MaxPacketAmount != nil && amount.Cmp(p.MaxPacketAmount) > 0 {
		return ilp.NewAmountTooLargeError(amount, p.MaxPacketAmount)
	}

	claimAmount, err := a.IncomingClaimAmount()
	if err != nil {
		return fmt.Errorf("claimengine: parse incoming claim: %w", err)
	}
	prepared := a.PreparedSnapshot()
	newPrepared := new(uint256.Int).Add(prepared, amount)

	var unsecured *uint256.Int
	if newPrepared.Cmp(claimAmount) >= 0 {
		unsecured = new(uint256.Int).Sub(newPrepared, claimAmount)
	} else {
		unsecured = uint256.NewInt(0)
	}
	if p.Bandwidth != nil && unsecured.Cmp(p.Bandwidth) > 0 {
		if p.Metrics != nil {
			p.Metrics.ClaimsRejected.WithLabelValues(a.ID, "bandwidth").Inc()
		}
		return ilp.NewInsufficientLiquidityError(fmt.Sprintf(
			"Insufficient bandwidth, used: %s max: %s", unsecured, p.Bandwidth))
	}

	channelDrops, ok := a.IncomingPaychanAmountDrops()
	if !ok {
		return ilp.NewUnreachableError(fmt.Sprintf("account %s has no incoming channel", a.ID))
	}
	newPreparedDrops := xrpamount.ToDropsRoundUp(newPrepared, p.CurrencyScale)
	if newPreparedDrops.Cmp(channelDrops) > 0 {
		if p.Metrics != nil {
			p.Metrics.ClaimsRejected.WithLabelValues(a.ID, "escrow").Inc()
		}
		return ilp.NewInsufficientLiquidityError(fmt.Sprintf(
			"Insufficient escrow, prepared drops %s would exceed channel amount %s", newPreparedDrops, channelDrops))
	}

	a.SetPrepared(newPrepared)
	if p.Metrics != nil {
		p.Metrics.PreparedAmount.WithLabelValues(a.ID).Set(float64(newPrepared.Uint64()))
	}
	return nil
}

// RollbackReject decrements the prepared amount for a PREPARE that was
// ultimately rejected (spec.md §4.5 "On subsequent REJECT").
func RollbackReject(a *account.Account, amount *uint256.Int) {
	prepared := a.PreparedSnapshot()
	var next *uint256.Int
	if prepared.Cmp(amount) >= 0 {
		next = new(uint256.Int).Sub(prepared, amount)
	} else {
		next = uint256.NewInt(0)
	}
	a.SetPrepared(next)
}
