package domain

import (
	"math"

	dErrors "stablegate/pkg/domain-errors"
)

// Amount is a monetary quantity in the smallest token unit: an unsigned
// fixed-point integer scaled by 10^Decimals. All supply, reserve, and balance
// arithmetic goes through the checked operations below; a silent wraparound
// on a reserve counter would break the backing invariant.
type Amount uint64

// Decimals is the fixed-point scale of the EUR token.
const Decimals = 9

// unitScale is 10^Decimals, the number of base units per whole EUR.
const unitScale Amount = 1_000_000_000

// MaxTransactionAmount is the absolute per-transaction ceiling
// (100,000 EUR in base units). Per-level policy ceilings may be lower,
// never higher.
const MaxTransactionAmount Amount = 100_000 * 1_000_000_000

// FromEUR converts a whole-EUR value to base units.
// Panics on overflow; callers pass compile-time constants only.
func FromEUR(eur uint64) Amount {
	if eur > math.MaxUint64/uint64(unitScale) {
		panic("domain: EUR amount overflows base units")
	}
	return Amount(eur) * unitScale
}

// CheckedAdd returns a+b or an error on overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if b > math.MaxUint64-a {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount addition overflows")
	}
	return a + b, nil
}

// CheckedSub returns a-b or an error on underflow.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount subtraction underflows")
	}
	return a - b, nil
}

// IsZero returns true for a zero amount.
func (a Amount) IsZero() bool {
	return a == 0
}
