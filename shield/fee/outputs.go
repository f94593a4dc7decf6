package fee

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
)

type Output struct {
	Recipient types.PublicKey `json:"recipient"`
	Amount    uint64          `json:"amount"`
}

// OutputsHash binds the payouts of a send, in the order they are paid:
// Hash(recipient_0 || LE64(amount_0) || recipient_1 || ...).
func OutputsHash(outputs []Output) [32]byte {
	hasher := utils.DefaultHasher()
	for _, o := range outputs {
		_, _ = hasher.Write(o.Recipient[:])
		_, _ = hasher.Write(utils.LE64(o.Amount))
	}
	var ret [32]byte
	copy(ret[:], hasher.Sum(nil))
	return ret
}

func SwapOutputsHash(outputMint, recipientATA types.PublicKey, minOutput, noteAmount uint64) [32]byte {
	return utils.DefaultHashSum32(outputMint[:], recipientATA[:], utils.LE64(minOutput), utils.LE64(noteAmount))
}

func StakeOutputsHash(stakeAccount types.PublicKey, noteAmount uint64) [32]byte {
	return utils.DefaultHashSum32(stakeAccount[:], utils.LE64(noteAmount))
}

func UnstakeOutputsHash(stakeAccount, recipient types.PublicKey, amount uint64) [32]byte {
	return utils.DefaultHashSum32(stakeAccount[:], recipient[:], utils.LE64(amount))
}

// CheckConservation requires sum(outputs) + fee == noteAmount exactly.
func CheckConservation(noteAmount uint64, outputs []Output, fee uint64) error {
	sum := uint256.NewInt(fee)
	for _, o := range outputs {
		sum.Add(sum, uint256.NewInt(o.Amount))
	}
	if !sum.Eq(uint256.NewInt(noteAmount)) {
		return &types.Error{
			Kind:    types.KindConservation,
			Message: fmt.Sprintf("outputs plus fee is %s, note amount is %d", sum.Dec(), noteAmount),
		}
	}
	return nil
}

// SingleOutput pays everything that remains after the fee to recipient.
func SingleOutput(recipient types.PublicKey, noteAmount uint64) ([]Output, error) {
	amt, err := Distributable(noteAmount)
	if err != nil {
		return nil, err
	}
	return []Output{{Recipient: recipient, Amount: amt}}, nil
}
