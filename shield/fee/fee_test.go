package fee

import (
	"math"
	"testing"

	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
	"github.com/stretchr/testify/require"
)

func TestFee_Schedule(t *testing.T) {
	require.Equal(t, uint64(2_500_000), Fee(0))
	require.Equal(t, uint64(2_500_000), Fee(199))
	require.Equal(t, uint64(2_500_001), Fee(200))
	require.Equal(t, uint64(7_500_000), Fee(1_000_000_000))

	// the intermediate product overflows uint64 for large amounts
	require.Equal(t, uint64(math.MaxUint64/1000*5+(math.MaxUint64%1000)*5/1000), VariableFee(math.MaxUint64))
}

func TestFee_Conservation(t *testing.T) {
	for _, amount := range []uint64{0, 1, 1_000_000_000, math.MaxUint64 / 2} {
		f := Fee(amount)
		out, err := Distributable(amount)
		if f >= amount {
			require.ErrorIs(t, err, ErrAmountTooSmall, "amount %d", amount)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, amount, out+f)

		outputs := []Output{{Recipient: types.PublicKey{1}, Amount: out}}
		require.NoError(t, CheckConservation(amount, outputs, f))
	}
}

func TestCheckConservation_Violation(t *testing.T) {
	r := types.PublicKey{9}
	err := CheckConservation(1_000_000_000, []Output{{r, 992_500_001}}, 7_500_000)
	require.ErrorIs(t, err, types.ErrConservation)

	err = CheckConservation(1_000_000_000, []Output{{r, 500_000_000}, {r, 492_500_000}}, 7_500_000)
	require.NoError(t, err)

	// sums past uint64 must not wrap around
	err = CheckConservation(10, []Output{{r, math.MaxUint64}, {r, 11}}, 0)
	require.ErrorIs(t, err, types.ErrConservation)
}

func TestEndToEndScenario(t *testing.T) {
	amount := uint64(1_000_000_000)
	recipient := types.MustPublicKey("So11111111111111111111111111111111111111112")

	require.Equal(t, uint64(5_000_000), VariableFee(amount))
	require.Equal(t, uint64(7_500_000), Fee(amount))

	outputs, err := SingleOutput(recipient, amount)
	require.NoError(t, err)
	require.Equal(t, uint64(992_500_000), outputs[0].Amount)
	require.NoError(t, CheckConservation(amount, outputs, Fee(amount)))

	h1 := OutputsHash(outputs)
	h2 := OutputsHash([]Output{{Recipient: recipient, Amount: 992_500_000}})
	require.Equal(t, h1, h2)
	require.Equal(t, utils.DefaultHashSum32(recipient[:], utils.LE64(992_500_000)), h1)

	require.Equal(t, uint64(75), FeeBps(amount, types.ModeSend))
	require.Equal(t, uint64(50), FeeBps(amount, types.ModeSwap))
}

func TestOutputsHash_Order(t *testing.T) {
	a := Output{Recipient: types.PublicKey{1}, Amount: 10}
	b := Output{Recipient: types.PublicKey{2}, Amount: 20}
	require.NotEqual(t, OutputsHash([]Output{a, b}), OutputsHash([]Output{b, a}))
	require.Equal(t, utils.DefaultHashSum32(), OutputsHash(nil))
}

func TestModeBindings(t *testing.T) {
	mint, ata, stake := types.PublicKey{1}, types.PublicKey{2}, types.PublicKey{3}

	swap := SwapOutputsHash(mint, ata, 123, 1_000)
	require.Equal(t, utils.DefaultHashSum32(mint[:], ata[:], utils.LE64(123), utils.LE64(1_000)), swap)
	require.NotEqual(t, swap, SwapOutputsHash(mint, ata, 124, 1_000))

	require.Equal(t, utils.DefaultHashSum32(stake[:], utils.LE64(1_000)), StakeOutputsHash(stake, 1_000))
	require.NotEqual(t, StakeOutputsHash(stake, 1_000), UnstakeOutputsHash(stake, ata, 1_000))
}

func TestFeeBps(t *testing.T) {
	require.Equal(t, uint64(0), FeeBps(0, types.ModeSend))
	// 2_515_000 * 10_000 / 3_000_000 = 8383.33.. rounds up
	require.Equal(t, uint64(8_384), FeeBps(3_000_000, types.ModeSend))
	require.Equal(t, uint64(50), FeeBps(3_000_000, types.ModeSwap))
	// 15_000 * 10_000 / 3_000_001 = 49.99.. rounds up
	require.Equal(t, uint64(50), FeeBps(3_000_001, types.ModeSwap))
	require.Equal(t, FeeBps(3_000_000, types.ModeSend), FeeBps(3_000_000, types.ModeStake))
}
