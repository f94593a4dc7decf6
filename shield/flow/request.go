package flow

import (
	"encoding/hex"

	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/types"
)

// DefaultSlippageBps is used for swaps that do not set one.
const DefaultSlippageBps uint64 = 50

type SwapRequest struct {
	OutputMint      types.PublicKey
	Recipient       types.PublicKey // wallet owning RecipientATA
	RecipientATA    types.PublicKey
	MinOutputAmount uint64
	SlippageBps     uint64
}

type StakeRequest struct {
	StakeAccount         types.PublicKey
	StakeAuthority       types.PublicKey
	ValidatorVoteAccount types.PublicKey
}

type UnstakeRequest struct {
	StakeAccount types.PublicKey
	Recipient    types.PublicKey
}

// Request describes where a spent note goes. Exactly the field matching
// Mode is read. A send with a single zero-amount output pays that output
// everything left after the fee.
type Request struct {
	Mode    types.Mode
	Outputs []fee.Output
	Swap    *SwapRequest
	Stake   *StakeRequest
	Unstake *UnstakeRequest
}

// Send pays the whole note, less the fee, to recipient.
func Send(recipient types.PublicKey) *Request {
	return &Request{Mode: types.ModeSend, Outputs: []fee.Output{{Recipient: recipient}}}
}

// plan is a request bound to a concrete note amount.
type plan struct {
	mode          types.Mode
	fee           uint64
	feeBps        uint64
	outputsHash   [32]byte
	relayOutputs  []fee.Output
	proverOutputs []fee.Output
	proverSwap    *prover.SwapParams
	proverStake   *prover.StakeParams
	relaySwap     *relay.SwapParams
	relayStake    *relay.StakeParams
	relayUnstake  *relay.UnstakeParams
}

func (r *Request) plan(amount uint64) (*plan, error) {
	if r == nil {
		return nil, types.Malformed("no spend request")
	}
	distributable, err := fee.Distributable(amount)
	if err != nil {
		return nil, types.NewError(types.KindMalformedInput, "note amount does not cover the fee", err)
	}
	p := &plan{
		mode:   r.Mode,
		fee:    fee.Fee(amount),
		feeBps: fee.FeeBps(amount, r.Mode),
	}

	switch r.Mode {
	case types.ModeSend:
		if len(r.Outputs) == 0 {
			return nil, types.Malformed("send needs at least one output")
		}
		outputs := append([]fee.Output(nil), r.Outputs...)
		if len(outputs) == 1 && outputs[0].Amount == 0 {
			outputs[0].Amount = distributable
		}
		for i, o := range outputs {
			if o.Recipient.IsZero() {
				return nil, types.Malformed("output %d has no recipient", i)
			}
		}
		p.outputsHash = fee.OutputsHash(outputs)
		p.relayOutputs = outputs
		p.proverOutputs = outputs

	case types.ModeSwap:
		s := r.Swap
		if s == nil {
			return nil, types.Malformed("swap parameters missing")
		}
		if s.OutputMint.IsZero() || s.RecipientATA.IsZero() || s.Recipient.IsZero() {
			return nil, types.Malformed("swap needs output mint, recipient and recipient token account")
		}
		slippage := s.SlippageBps
		if slippage == 0 {
			slippage = DefaultSlippageBps
		}
		p.outputsHash = fee.SwapOutputsHash(s.OutputMint, s.RecipientATA, s.MinOutputAmount, amount)
		p.relayOutputs = []fee.Output{{Recipient: s.Recipient, Amount: distributable}}
		p.proverSwap = &prover.SwapParams{
			OutputMint:      s.OutputMint.String(),
			RecipientATA:    s.RecipientATA.String(),
			MinOutputAmount: s.MinOutputAmount,
		}
		p.relaySwap = &relay.SwapParams{
			OutputMint:      s.OutputMint.String(),
			SlippageBps:     slippage,
			MinOutputAmount: s.MinOutputAmount,
		}

	case types.ModeStake:
		s := r.Stake
		if s == nil {
			return nil, types.Malformed("stake parameters missing")
		}
		if s.StakeAccount.IsZero() || s.StakeAuthority.IsZero() || s.ValidatorVoteAccount.IsZero() {
			return nil, types.Malformed("stake needs stake account, authority and validator vote account")
		}
		p.outputsHash = fee.StakeOutputsHash(s.StakeAccount, amount)
		p.proverStake = &prover.StakeParams{StakeAccount: s.StakeAccount.String()}
		p.relayStake = &relay.StakeParams{
			StakeAccount:         s.StakeAccount.String(),
			StakeAuthority:       s.StakeAuthority.String(),
			ValidatorVoteAccount: s.ValidatorVoteAccount.String(),
		}

	case types.ModeUnstake:
		u := r.Unstake
		if u == nil {
			return nil, types.Malformed("unstake parameters missing")
		}
		if u.StakeAccount.IsZero() || u.Recipient.IsZero() {
			return nil, types.Malformed("unstake needs stake account and recipient")
		}
		p.outputsHash = fee.UnstakeOutputsHash(u.StakeAccount, u.Recipient, amount)
		p.relayOutputs = []fee.Output{{Recipient: u.Recipient, Amount: distributable}}
		p.relayUnstake = &relay.UnstakeParams{
			StakeAccount: u.StakeAccount.String(),
			Recipient:    u.Recipient.String(),
		}

	default:
		return nil, types.Malformed("unknown mode %q", r.Mode)
	}

	// staking moves the whole distributable amount into the stake account
	conserved := p.relayOutputs
	if r.Mode == types.ModeStake {
		conserved = []fee.Output{{Recipient: r.Stake.StakeAccount, Amount: distributable}}
	}
	if err := fee.CheckConservation(amount, conserved, p.fee); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) withdrawRequest(root, nf string, amount uint64, proof []byte) *relay.WithdrawRequest {
	outputs := p.relayOutputs
	if outputs == nil {
		outputs = []fee.Output{}
	}
	return &relay.WithdrawRequest{
		Outputs: outputs,
		Policy:  relay.Policy{FeeBps: p.feeBps},
		PublicInputs: relay.PublicInputs{
			Root:        root,
			Nf:          nf,
			Amount:      amount,
			FeeBps:      p.feeBps,
			OutputsHash: hex.EncodeToString(p.outputsHash[:]),
		},
		ProofBytes: encodeProof(proof),
		Swap:       p.relaySwap,
		Stake:      p.relayStake,
		Unstake:    p.relayUnstake,
	}
}
