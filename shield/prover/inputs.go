package prover

import (
	"encoding/hex"

	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/types"
)

const (
	ProofSize        = 260 // Groth16 proof bytes
	PublicInputsSize = 104 // root || nf || outputs_hash || LE64(amount)
)

type MerklePath struct {
	PathElements []string `json:"path_elements"`
	PathIndices  []int    `json:"path_indices"`
}

type PrivateInputs struct {
	Amount     uint64     `json:"amount"`
	R          string     `json:"r"`
	SkSpend    string     `json:"sk_spend"`
	LeafIndex  uint32     `json:"leaf_index"`
	MerklePath MerklePath `json:"merkle_path"`
}

type PublicInputs struct {
	Root        string `json:"root"`
	Nf          string `json:"nf"`
	OutputsHash string `json:"outputs_hash"`
	Amount      uint64 `json:"amount"`
}

// Output is a send output as the prover hashes it: Address is the raw
// recipient key in hex, not base58.
type Output struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type SwapParams struct {
	OutputMint      string `json:"output_mint"`
	RecipientATA    string `json:"recipient_ata"`
	MinOutputAmount uint64 `json:"min_output_amount"`
}

type StakeParams struct {
	StakeAccount string `json:"stake_account"`
}

// Inputs is everything the circuit needs to prove one spend.
type Inputs struct {
	Private PrivateInputs
	Public  PublicInputs
	Outputs []Output
	Swap    *SwapParams
	Stake   *StakeParams
}

// BuildInputs assembles the circuit inputs for spending note under proof.
// The nullifier is derived here from the note's own spend key.
func BuildInputs(note *types.Note, proof *merkle.Proof, outputsHash [32]byte, outputs []fee.Output) (*Inputs, error) {
	if note.LeafIndex == nil {
		return nil, &types.Error{Kind: types.KindNoteState, Message: "note has no leaf index"}
	}
	if proof == nil {
		return nil, types.Malformed("no merkle proof")
	}
	nf, err := note.ComputeNullifier()
	if err != nil {
		return nil, err
	}

	in := &Inputs{
		Private: PrivateInputs{
			Amount:    note.Amount,
			R:         note.R,
			SkSpend:   note.SkSpend,
			LeafIndex: *note.LeafIndex,
			MerklePath: MerklePath{
				PathElements: append([]string{}, proof.PathElements...),
				PathIndices:  append([]int{}, proof.PathIndices...),
			},
		},
		Public: PublicInputs{
			Root:        proof.Root,
			Nf:          hex.EncodeToString(nf[:]),
			OutputsHash: hex.EncodeToString(outputsHash[:]),
			Amount:      note.Amount,
		},
		Outputs: make([]Output, 0, len(outputs)),
	}
	for _, o := range outputs {
		in.Outputs = append(in.Outputs, Output{Address: o.Recipient.Hex(), Amount: o.Amount})
	}
	return in, nil
}
