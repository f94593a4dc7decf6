package fee

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/kysee/cloak/shield/types"
)

// The schedule is shared with the circuit and the pool program. It uses
// integer arithmetic only.
const (
	FixedLamports       uint64 = 2_500_000
	VariableNumerator   uint64 = 5
	VariableDenominator uint64 = 1_000

	bpsDenominator uint64 = 10_000
)

var ErrAmountTooSmall = errors.New("amount too small after fees")

// VariableFee is floor(amount * 5 / 1000).
func VariableFee(amount uint64) uint64 {
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(VariableNumerator))
	v.Div(v, uint256.NewInt(VariableDenominator))
	return v.Uint64()
}

func Fee(amount uint64) uint64 {
	return FixedLamports + VariableFee(amount)
}

// Distributable is what the outputs of a spend receive in total.
func Distributable(amount uint64) (uint64, error) {
	f := Fee(amount)
	if f >= amount {
		return 0, ErrAmountTooSmall
	}
	return amount - f, nil
}

// FeeBps is the fee the relay is told to take, in basis points of amount,
// rounded up. Swaps report only the variable part.
func FeeBps(amount uint64, mode types.Mode) uint64 {
	if amount == 0 {
		return 0
	}
	f := Fee(amount)
	if mode == types.ModeSwap {
		f = VariableFee(amount)
	}
	num := new(uint256.Int).Mul(uint256.NewInt(f), uint256.NewInt(bpsDenominator))
	den := uint256.NewInt(amount)
	q, r := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q.Uint64()
}
