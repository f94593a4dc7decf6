package node

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
)

type job struct {
	req    *relay.WithdrawRequest
	script []relay.JobStatus
	polls  int
	done   *relay.JobStatus
}

// SetRelayScript makes every later job report statuses in order, one per
// Status call, repeating the last one. A completed status without a TxID
// gets a fresh signature. An empty script restores the default
// queued, processing, completed sequence.
func (l *Ledger) SetRelayScript(statuses ...relay.JobStatus) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.script = append([]relay.JobStatus(nil), statuses...)
}

func defaultScript() []relay.JobStatus {
	return []relay.JobStatus{
		{Status: relay.StatusQueued},
		{Status: relay.StatusProcessing},
		{Status: relay.StatusCompleted},
	}
}

// Withdraw checks the spend the way the pool program would and queues it.
func (l *Ledger) Withdraw(ctx context.Context, req *relay.WithdrawRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkWithdraw(req); err != nil {
		return "", err
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	pub := req.PublicInputs
	if !l.knownRoot(pub.Root) {
		return "", ErrUnknownRoot
	}
	if _, ok := l.nullifiers[strings.ToLower(pub.Nf)]; ok {
		return "", ErrNullifierUsed
	}
	for _, j := range l.jobs {
		if j.done == nil && strings.EqualFold(j.req.PublicInputs.Nf, pub.Nf) {
			return "", ErrNullifierUsed
		}
	}

	script := l.script
	if len(script) == 0 {
		script = defaultScript()
	}
	id := uuid.NewString()
	l.jobs[id] = &job{req: req, script: append([]relay.JobStatus(nil), script...)}
	return id, nil
}

func checkWithdraw(req *relay.WithdrawRequest) error {
	proof, err := base64.StdEncoding.DecodeString(req.ProofBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProofBytes, err)
	}
	pub, err := publicInputBytes(req.PublicInputs.Root, req.PublicInputs.Nf, req.PublicInputs.OutputsHash, req.PublicInputs.Amount)
	if err != nil {
		return err
	}
	if len(proof) != prover.ProofSize || !bytes.Equal(proof[:utils.HashSize], utils.DefaultHashSum(pub)) {
		return ErrInvalidProofBytes
	}

	if req.Swap == nil && req.Stake == nil && req.Unstake == nil {
		h := fee.OutputsHash(req.Outputs)
		if hex.EncodeToString(h[:]) != strings.ToLower(req.PublicInputs.OutputsHash) {
			return fmt.Errorf("outputs do not match outputs_hash")
		}
		f := fee.Fee(req.PublicInputs.Amount)
		if err := fee.CheckConservation(req.PublicInputs.Amount, req.Outputs, f); err != nil {
			return err
		}
	}
	if want := fee.FeeBps(req.PublicInputs.Amount, modeOf(req)); req.Policy.FeeBps != want {
		return fmt.Errorf("fee_bps %d, expected %d", req.Policy.FeeBps, want)
	}
	return nil
}

func modeOf(req *relay.WithdrawRequest) types.Mode {
	switch {
	case req.Swap != nil:
		return types.ModeSwap
	case req.Stake != nil:
		return types.ModeStake
	case req.Unstake != nil:
		return types.ModeUnstake
	}
	return types.ModeSend
}

func (l *Ledger) Status(ctx context.Context, requestID string) (*relay.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	j, ok := l.jobs[requestID]
	if !ok {
		return nil, &types.Error{Kind: types.KindExternalService, Call: "relay.status", Message: "unknown request " + requestID}
	}
	if j.done != nil {
		st := *j.done
		return &st, nil
	}

	st := j.script[min(j.polls, len(j.script)-1)]
	j.polls++
	switch st.Status {
	case relay.StatusCompleted:
		if st.TxID == "" {
			st.TxID = newSignature()
		}
		l.nullifiers[strings.ToLower(j.req.PublicInputs.Nf)] = struct{}{}
		l.poolBalance -= j.req.PublicInputs.Amount
		j.done = &st
	case relay.StatusFailed:
		j.done = &st
	}
	ret := st
	return &ret, nil
}

//
// Prover

// GenerateProof checks the inputs against the statement the circuit proves
// and returns a proof only this ledger accepts.
func (l *Ledger) GenerateProof(ctx context.Context, in *prover.Inputs) (*prover.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fail := func(msg string) (*prover.Result, error) {
		return nil, &types.Error{Kind: types.KindExternalService, Call: "prover.generate_proof", Message: msg}
	}

	priv := in.Private
	sk, err := utils.DecodeHex32(priv.SkSpend)
	if err != nil {
		return fail("invalid sk_spend")
	}
	r, err := utils.DecodeHex32(priv.R)
	if err != nil {
		return fail("invalid r")
	}
	if priv.Amount != in.Public.Amount {
		return fail("amount mismatch")
	}
	cm := types.Commit(priv.Amount, r, crypto.PublicSpendKey(sk))
	path := &merkle.Proof{
		Root:         in.Public.Root,
		PathElements: priv.MerklePath.PathElements,
		PathIndices:  priv.MerklePath.PathIndices,
	}
	if err := merkle.Verify(hex.EncodeToString(cm[:]), path); err != nil {
		return fail("commitment not in tree: " + err.Error())
	}
	nf := types.Nullifier(sk, priv.LeafIndex)
	if hex.EncodeToString(nf[:]) != strings.ToLower(in.Public.Nf) {
		return fail("nullifier mismatch")
	}
	if in.Swap == nil && in.Stake == nil && len(in.Outputs) > 0 {
		outputs := make([]fee.Output, 0, len(in.Outputs))
		for _, o := range in.Outputs {
			pk, err := utils.DecodeHex32(o.Address)
			if err != nil {
				return fail("invalid output address")
			}
			outputs = append(outputs, fee.Output{Recipient: types.PublicKey(pk), Amount: o.Amount})
		}
		h := fee.OutputsHash(outputs)
		if hex.EncodeToString(h[:]) != strings.ToLower(in.Public.OutputsHash) {
			return fail("outputs hash mismatch")
		}
	}

	pub, err := publicInputBytes(in.Public.Root, in.Public.Nf, in.Public.OutputsHash, in.Public.Amount)
	if err != nil {
		return fail(err.Error())
	}
	proof := make([]byte, prover.ProofSize)
	copy(proof, utils.DefaultHashSum(pub))
	return &prover.Result{Proof: proof, PublicInputs: pub}, nil
}

// publicInputBytes is root || nf || outputs_hash || LE64(amount).
func publicInputBytes(root, nf, outputsHash string, amount uint64) ([]byte, error) {
	ret := make([]byte, 0, prover.PublicInputsSize)
	for _, s := range []string{root, nf, outputsHash} {
		bz, err := utils.DecodeHex32(s)
		if err != nil {
			return nil, fmt.Errorf("invalid public input: %w", err)
		}
		ret = append(ret, bz[:]...)
	}
	return append(ret, utils.LE64(amount)...), nil
}
