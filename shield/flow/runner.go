package flow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/indexer"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/poll"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/solana"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
	"github.com/rs/zerolog"
)

type Options struct {
	Network     types.Network
	DepositPoll poll.Options
	RelayPoll   poll.Options
	Observer    Observer
}

func DefaultOptions(network types.Network) Options {
	return Options{
		Network:     network,
		DepositPoll: poll.DepositConfirmation,
		RelayPoll:   poll.RelayStatus,
	}
}

// Deps are the collaborators a Runner drives. Chain may be nil for a runner
// that only spends.
type Deps struct {
	Store   store.NoteStore
	Indexer indexer.Indexer
	Relay   relay.Relay
	Prover  prover.Generator
	Chain   solana.Chain
	Keys    *crypto.KeySet
}

type Result struct {
	FlowID           string
	Mode             types.Mode
	State            State
	Note             *types.Note
	DepositSignature string
	DepositSlot      uint64
	RequestID        string
	TxID             string
	Fee              uint64
	FeeBps           uint64
	Nullifier        string
}

// Runner drives deposits and spends through the state machine. Note status
// is persisted only once the external system has confirmed the step.
type Runner struct {
	deps    Deps
	opts    Options
	guard   *Guard
	logger  zerolog.Logger
	metrics *Metrics
}

func NewRunner(deps Deps, opts Options, logger zerolog.Logger, metrics *Metrics) *Runner {
	if opts.DepositPoll.MaxAttempts == 0 {
		opts.DepositPoll = poll.DepositConfirmation
	}
	if opts.RelayPoll.MaxAttempts == 0 {
		opts.RelayPoll = poll.RelayStatus
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Runner{
		deps:    deps,
		opts:    opts,
		guard:   NewGuard(),
		logger:  logger,
		metrics: metrics,
	}
}

func (r *Runner) Guard() *Guard {
	return r.guard
}

func (r *Runner) newMachine(start State) (*Machine, zerolog.Logger) {
	id := uuid.NewString()
	log := r.logger.With().Str("flow", id).Logger()
	m := NewMachine(id, start, func(tr Transition) {
		r.metrics.observeTransition(tr)
		ev := log.Info()
		if tr.Err != nil {
			ev = log.Warn().Err(tr.Err)
		}
		ev.Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("flow transition")
		if r.opts.Observer != nil {
			r.opts.Observer(tr)
		}
	})
	return m, log
}

func (r *Runner) finish(operation string, mode types.Mode, m *Machine, res *Result, start time.Time) {
	res.State = m.State()
	outcome := string(res.State)
	if res.State == StateError {
		if k := types.KindOf(m.Err()); k != "" {
			outcome = string(k)
		}
	}
	r.metrics.observeRun(operation, string(mode), outcome, time.Since(start))
}

// fail records err on m, tagged with the state it happened in.
func fail(m *Machine, err error, call string) error {
	return m.Fail(types.WithStep(err, string(m.State()), call))
}

// Deposit creates a note for amount, deposits it on-chain, registers it with
// the indexer and stores it as deposited.
func (r *Runner) Deposit(ctx context.Context, amount uint64) (*Result, error) {
	start := time.Now()
	m, log := r.newMachine(StateIdle)
	res := &Result{FlowID: m.ID()}
	defer r.finish("deposit", "", m, res, start)

	err := r.deposit(ctx, m, log, amount, res)
	return res, err
}

func (r *Runner) deposit(ctx context.Context, m *Machine, log zerolog.Logger, amount uint64, res *Result) error {
	if r.deps.Chain == nil {
		return fail(m, types.Malformed("runner has no chain to deposit on"), "")
	}
	note, err := types.NewNote(amount, &r.deps.Keys.Spend, r.opts.Network)
	if err != nil {
		return fail(m, err, "")
	}
	res.Note = note
	log = log.With().Str("commitment", utils.Short(note.Commitment)).Logger()

	// the note is the only way back to the funds, so it is stored first
	if err := r.deps.Store.Save(ctx, note); err != nil {
		return fail(m, err, "store.save")
	}
	if err := m.Advance(StateDepositing); err != nil {
		return fail(m, err, "")
	}

	cm, err := note.CommitmentBytes()
	if err != nil {
		return fail(m, err, "")
	}
	sig, err := r.deps.Chain.SubmitDeposit(ctx, amount, cm)
	if err != nil {
		return fail(m, err, "solana.submit_deposit")
	}
	log.Info().Str("signature", sig).Uint64("amount", amount).Msg("deposit submitted")

	slot, err := r.confirm(ctx, sig)
	if err != nil {
		return fail(m, err, "solana.signature_status")
	}
	res.DepositSignature, res.DepositSlot = sig, slot
	if err := r.deps.Store.Update(ctx, note.Commitment, store.Patch{DepositSignature: &sig, DepositSlot: &slot}); err != nil {
		return fail(m, err, "store.update")
	}
	note.DepositSignature, note.DepositSlot = sig, &slot

	enc, err := types.EncryptNoteData(note.Data(), r.deps.Keys.View.Public)
	if err != nil {
		return fail(m, err, "")
	}
	encoded, err := types.EncodeEncryptedNote(enc)
	if err != nil {
		return fail(m, err, "")
	}
	dep, err := r.deps.Indexer.Deposit(ctx, &indexer.DepositRequest{
		LeafCommit:      note.Commitment,
		EncryptedOutput: encoded,
		TxSignature:     sig,
		Slot:            slot,
	})
	if err != nil {
		return fail(m, err, "indexer.deposit")
	}

	leaf := dep.LeafIndex
	fetch := func(ctx context.Context) (*merkle.Proof, error) {
		return r.deps.Indexer.MerkleProof(ctx, leaf)
	}
	first, err := fetch(ctx)
	if err != nil {
		return fail(m, err, "indexer.merkle_proof")
	}
	proof, _, err := merkle.VerifyWithRefresh(ctx, note.Commitment, first, fetch)
	if err != nil {
		return fail(m, err, "indexer.merkle_proof")
	}

	deposited := types.StatusDeposited
	patch := store.Patch{LeafIndex: &leaf, Root: &proof.Root, MerkleProof: proof.Path(), Status: &deposited}
	if err := r.deps.Store.Update(ctx, note.Commitment, patch); err != nil {
		return fail(m, err, "store.update")
	}
	note.LeafIndex, note.Root, note.MerkleProof, note.Status = &leaf, proof.Root, proof.Path(), deposited

	log.Info().Uint32("leaf_index", leaf).Str("root", utils.Short(proof.Root)).Msg("deposit registered")
	return m.Advance(StateDeposited)
}

type slotLookup interface {
	TransactionSlot(ctx context.Context, signature string) (uint64, bool, error)
}

func (r *Runner) confirm(ctx context.Context, sig string) (uint64, error) {
	st, err := poll.Until(ctx, r.opts.DepositPoll,
		func(ctx context.Context) (*solana.SignatureStatus, error) {
			return r.deps.Chain.SignatureStatus(ctx, sig)
		},
		func(st *solana.SignatureStatus) (poll.Verdict, error) {
			switch {
			case st.Failed():
				te := st.TxError()
				return poll.Fail, &types.Error{
					Kind:    types.KindExternalService,
					Message: fmt.Sprintf("deposit %s failed at slot %d", sig, st.Slot),
					Err:     te,
				}
			case st.Confirmed():
				return poll.Done, nil
			}
			return poll.Continue, nil
		})
	if err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			return 0, &types.Error{
				Kind:    types.KindTimeout,
				Message: fmt.Sprintf("deposit %s not confirmed after %d attempts", sig, r.opts.DepositPoll.MaxAttempts),
				Err:     err,
			}
		}
		return 0, err
	}
	if st.Slot == 0 {
		if sl, ok := r.deps.Chain.(slotLookup); ok {
			if slot, found, err := sl.TransactionSlot(ctx, sig); err == nil && found {
				return slot, nil
			}
		}
	}
	return st.Slot, nil
}

// Spend proves ownership of the deposited note and has the relay pay it out
// as req describes.
func (r *Runner) Spend(ctx context.Context, commitment string, req *Request) (*Result, error) {
	start := time.Now()
	mode := types.Mode("")
	if req != nil {
		mode = req.Mode
	}
	m, log := r.newMachine(StateDeposited)
	res := &Result{FlowID: m.ID(), Mode: mode}
	defer r.finish("spend", mode, m, res, start)

	release, err := r.guard.Acquire(commitment)
	if err != nil {
		return res, fail(m, err, "")
	}
	defer release()

	note, err := r.deps.Store.Get(ctx, commitment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, fail(m, &types.Error{Kind: types.KindNoteState, Message: "unknown note " + commitment, Err: err}, "store.get")
		}
		return res, fail(m, err, "store.get")
	}
	res.Note = note
	return res, r.spend(ctx, m, log, note, req, res)
}

// Execute deposits amount and spends the new note on one machine.
func (r *Runner) Execute(ctx context.Context, amount uint64, req *Request) (*Result, error) {
	start := time.Now()
	mode := types.Mode("")
	if req != nil {
		mode = req.Mode
	}
	m, log := r.newMachine(StateIdle)
	res := &Result{FlowID: m.ID(), Mode: mode}
	defer r.finish("execute", mode, m, res, start)

	if err := r.deposit(ctx, m, log, amount, res); err != nil {
		return res, err
	}
	release, err := r.guard.Acquire(res.Note.Commitment)
	if err != nil {
		return res, fail(m, err, "")
	}
	defer release()
	return res, r.spend(ctx, m, log, res.Note, req, res)
}

func (r *Runner) spend(ctx context.Context, m *Machine, log zerolog.Logger, note *types.Note, req *Request, res *Result) error {
	log = log.With().Str("commitment", utils.Short(note.Commitment)).Logger()

	switch {
	case note.Status == types.StatusSpent:
		return fail(m, &types.Error{Kind: types.KindNoteState, Message: "note already spent"}, "")
	case !note.IsSpendable():
		return fail(m, &types.Error{Kind: types.KindNoteState, Message: "note is not deposited"}, "")
	case r.opts.Network != "" && note.Network != "" && note.Network != r.opts.Network:
		return fail(m, &types.Error{
			Kind:    types.KindNoteState,
			Message: fmt.Sprintf("note belongs to %s, runner is on %s", note.Network, r.opts.Network),
		}, "")
	}

	leaf := *note.LeafIndex
	var cached *merkle.Proof
	if note.MerkleProof != nil {
		cached = merkle.FromPath(note.Root, note.MerkleProof)
	}
	proof, refreshed, err := merkle.VerifyWithRefresh(ctx, note.Commitment, cached,
		func(ctx context.Context) (*merkle.Proof, error) {
			return r.deps.Indexer.MerkleProof(ctx, leaf)
		})
	if err != nil {
		return fail(m, err, "indexer.merkle_proof")
	}
	if refreshed {
		log.Info().Str("root", utils.Short(proof.Root)).Msg("merkle proof refreshed")
		if err := r.deps.Store.Update(ctx, note.Commitment, store.Patch{Root: &proof.Root, MerkleProof: proof.Path()}); err != nil {
			return fail(m, err, "store.update")
		}
	}

	p, err := req.plan(note.Amount)
	if err != nil {
		return fail(m, err, "")
	}
	res.Mode, res.Fee, res.FeeBps = p.mode, p.fee, p.feeBps

	in, err := prover.BuildInputs(note, proof, p.outputsHash, p.proverOutputs)
	if err != nil {
		return fail(m, err, "")
	}
	in.Swap, in.Stake = p.proverSwap, p.proverStake
	res.Nullifier = in.Public.Nf

	if err := m.Advance(StateGeneratingProof); err != nil {
		return fail(m, err, "")
	}
	proved, err := r.deps.Prover.GenerateProof(ctx, in)
	if err != nil {
		return fail(m, err, "prover.generate_proof")
	}
	r.metrics.observeProof(proved.GenerationTime)
	if err := m.Advance(StateProofGenerated); err != nil {
		return fail(m, err, "")
	}

	wreq := p.withdrawRequest(proof.Root, in.Public.Nf, note.Amount, proved.Proof)
	requestID, err := r.deps.Relay.Withdraw(ctx, wreq)
	if err != nil {
		return fail(m, err, "relay.withdraw")
	}
	res.RequestID = requestID
	log = log.With().Str("request_id", requestID).Logger()
	if err := m.Advance(StateQueued); err != nil {
		return fail(m, err, "")
	}

	txID, err := r.awaitRelay(ctx, m, requestID)
	if err != nil {
		return fail(m, err, "relay.status")
	}
	res.TxID = txID
	if m.State() == StateQueued {
		if err := m.Advance(StateBeingMined); err != nil {
			return fail(m, err, "")
		}
	}
	m.setTxID(txID)
	if err := m.Advance(StateMined); err != nil {
		return fail(m, err, "")
	}
	log.Info().Str("tx_id", txID).Msg("spend landed")

	var storeErr error
	if err := r.deps.Store.Update(ctx, note.Commitment, store.StatusPatch(types.StatusSpent)); err != nil {
		storeErr = types.WithStep(err, string(StateMined), "store.update")
		log.Error().Err(err).Str("tx_id", txID).Msg("note spent on-chain but not marked spent")
	} else {
		note.Status = types.StatusSpent
	}
	if err := m.Advance(StateSent); err != nil {
		return fail(m, err, "")
	}
	return storeErr
}

// awaitRelay polls the relay job until it completes, fails or runs out of
// attempts. A timeout does not mean the transaction did not land.
func (r *Runner) awaitRelay(ctx context.Context, m *Machine, requestID string) (string, error) {
	st, err := poll.Until(ctx, r.opts.RelayPoll,
		func(ctx context.Context) (*relay.JobStatus, error) {
			return r.deps.Relay.Status(ctx, requestID)
		},
		func(st *relay.JobStatus) (poll.Verdict, error) {
			switch st.Status {
			case relay.StatusProcessing:
				if m.State() == StateQueued {
					if err := m.Advance(StateBeingMined); err != nil {
						return poll.Fail, err
					}
				}
			case relay.StatusCompleted:
				if st.TxID == "" {
					return poll.Fail, &types.Error{
						Kind:    types.KindExternalService,
						Message: "relay job " + requestID + " completed without a transaction id",
					}
				}
				return poll.Done, nil
			case relay.StatusFailed:
				reason := st.Error
				if reason == "" {
					reason = "relay job failed"
				}
				return poll.Fail, &types.Error{Kind: types.KindRelayFailed, Message: reason}
			}
			return poll.Continue, nil
		})
	if err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			return "", &types.Error{
				Kind: types.KindTimeout,
				Message: fmt.Sprintf("relay job %s not finished after %d attempts; the transaction may still land",
					requestID, r.opts.RelayPoll.MaxAttempts),
				Err: err,
			}
		}
		return "", err
	}
	return st.TxID, nil
}

func encodeProof(proof []byte) string {
	return base64.StdEncoding.EncodeToString(proof)
}
