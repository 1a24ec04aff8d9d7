// Package xrpamount converts between an account's configured currency scale
// (spec.md §6 AssetScale/CurrencyScale) and XRP drops, and provides the
// fixed-width unsigned arithmetic the account and claim-accounting packages
// use for balances, prepared amounts and claims.
package xrpamount

import "github.com/holiman/uint256"

// DropScale is the number of decimal places in one drop: 1 XRP = 10^6 drops.
const DropScale = 6

var pow10Cache = map[uint8]*uint256.Int{}

func pow10(n uint8) *uint256.Int {
	if v, ok := pow10Cache[n]; ok {
		return v
	}
	v := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		v = new(uint256.Int).Mul(v, ten)
	}
	pow10Cache[n] = v
	return v
}

// ToDropsRoundDown converts an amount denominated in the account's base unit
// (currencyScale decimal places) into XRP drops, truncating any remainder.
func ToDropsRoundDown(baseUnits *uint256.Int, currencyScale uint8) *uint256.Int {
	if currencyScale <= DropScale {
		return new(uint256.Int).Mul(baseUnits, pow10(DropScale-currencyScale))
	}
	divisor := pow10(currencyScale - DropScale)
	q := new(uint256.Int)
	q.Div(baseUnits, divisor)
	return q
}

// ToDropsRoundUp converts an amount denominated in the account's base unit
// into XRP drops, rounding any remainder up. spec.md §4.6 step 3 requires
// this for outgoing claims so repeated signings never accumulate sub-drop
// drift in the peer's favor.
func ToDropsRoundUp(baseUnits *uint256.Int, currencyScale uint8) *uint256.Int {
	if currencyScale <= DropScale {
		return new(uint256.Int).Mul(baseUnits, pow10(DropScale-currencyScale))
	}
	divisor := pow10(currencyScale - DropScale)
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(baseUnits, divisor, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// FromDropsRoundUp converts an XRP drop amount into the account's base unit,
// rounding any remainder up. Used to conservatively estimate a network fee
// (denominated in drops) in base units before comparing it against a
// profitability threshold (spec.md §4.8).
func FromDropsRoundUp(dropAmount *uint256.Int, currencyScale uint8) *uint256.Int {
	if currencyScale >= DropScale {
		return new(uint256.Int).Mul(dropAmount, pow10(currencyScale-DropScale))
	}
	divisor := pow10(DropScale - currencyScale)
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(dropAmount, divisor, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// FromString parses a base-10 string amount (as carried on ILP packets and in
// the persisted store) into a uint256.Int, treating an empty string as zero.
func FromString(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Zero returns a fresh zero-valued amount.
func Zero() *uint256.Int { return uint256.NewInt(0) }
