package relay

import (
	"context"

	"github.com/kysee/cloak/shield/fee"
)

// Job statuses reported by the relay.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Policy struct {
	FeeBps uint64 `json:"fee_bps"`
}

type PublicInputs struct {
	Root        string `json:"root"`
	Nf          string `json:"nf"`
	Amount      uint64 `json:"amount"`
	FeeBps      uint64 `json:"fee_bps"`
	OutputsHash string `json:"outputs_hash"`
}

type SwapParams struct {
	OutputMint      string `json:"output_mint"`
	SlippageBps     uint64 `json:"slippage_bps"`
	MinOutputAmount uint64 `json:"min_output_amount"`
}

type StakeParams struct {
	StakeAccount         string `json:"stake_account"`
	StakeAuthority       string `json:"stake_authority"`
	ValidatorVoteAccount string `json:"validator_vote_account"`
}

type UnstakeParams struct {
	StakeAccount string `json:"stake_account"`
	Recipient    string `json:"recipient"`
}

type WithdrawRequest struct {
	Outputs      []fee.Output   `json:"outputs"`
	Policy       Policy         `json:"policy"`
	PublicInputs PublicInputs   `json:"public_inputs"`
	ProofBytes   string         `json:"proof_bytes"` // base64
	Swap         *SwapParams    `json:"swap,omitempty"`
	Stake        *StakeParams   `json:"stake,omitempty"`
	Unstake      *UnstakeParams `json:"unstake,omitempty"`
}

type JobStatus struct {
	Status string `json:"status"`
	TxID   string `json:"tx_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Relay submits spends on the user's behalf.
type Relay interface {
	Withdraw(ctx context.Context, req *WithdrawRequest) (requestID string, err error)
	Status(ctx context.Context, requestID string) (*JobStatus, error)
}
