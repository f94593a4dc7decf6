package flow

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/node"
	"github.com/kysee/cloak/shield/poll"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/solana"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var fastPoll = poll.Options{Interval: time.Millisecond, MaxAttempts: 5}

type env struct {
	ledger  *node.Ledger
	store   store.NoteStore
	keys    *crypto.KeySet
	runner  *Runner
	metrics *Metrics
	deps    Deps
	opts    Options
}

func newEnv(t *testing.T, edit func(*Deps, *Options)) *env {
	keys, err := crypto.NewKeySet()
	require.NoError(t, err)

	ledger := node.NewLedger(16, zerolog.Nop())
	deps := Deps{
		Store:   store.NewMemoryStore(),
		Indexer: ledger,
		Relay:   ledger,
		Prover:  ledger,
		Chain:   ledger,
		Keys:    keys,
	}
	opts := Options{Network: types.Localnet, DepositPoll: fastPoll, RelayPoll: fastPoll}
	if edit != nil {
		edit(&deps, &opts)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	return &env{
		ledger:  ledger,
		store:   deps.Store,
		keys:    keys,
		runner:  NewRunner(deps, opts, zerolog.Nop(), metrics),
		metrics: metrics,
		deps:    deps,
		opts:    opts,
	}
}

func randHex() string {
	return hex.EncodeToString(types.RandBytes(32))
}

func recipient() types.PublicKey {
	pk, _ := types.PublicKeyFromBytes(types.RandBytes(32))
	return pk
}

func (e *env) deposit(t *testing.T, amount uint64) *types.Note {
	res, err := e.runner.Deposit(context.Background(), amount)
	require.NoError(t, err)
	require.Equal(t, StateDeposited, res.State)
	return res.Note
}

func (e *env) stored(t *testing.T, commitment string) *types.Note {
	n, err := e.store.Get(context.Background(), commitment)
	require.NoError(t, err)
	return n
}

func TestRunner_Deposit(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)

	n := e.stored(t, note.Commitment)
	require.Equal(t, types.StatusDeposited, n.Status)
	require.NotEmpty(t, n.DepositSignature)
	require.NotNil(t, n.DepositSlot)
	require.Equal(t, uint32(0), *n.LeafIndex)
	require.NoError(t, merkle.Verify(n.Commitment, merkle.FromPath(n.Root, n.MerkleProof)))
	require.Equal(t, uint64(1_000_000_000), e.ledger.PoolBalance())

	// the encrypted output comes back to the depositor's view key
	page, err := e.ledger.NotesRange(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	found := types.ScanEncodedNotes(page.Notes, &e.keys.View)
	require.Len(t, found, 1)
	require.Equal(t, note.Commitment, found[0].Commitment)
}

func TestRunner_ExecuteSend(t *testing.T) {
	var states []State
	e := newEnv(t, func(_ *Deps, o *Options) {
		o.Observer = func(tr Transition) { states = append(states, tr.To) }
	})
	to := recipient()

	res, err := e.runner.Execute(context.Background(), 1_000_000_000, Send(to))
	require.NoError(t, err)
	require.Equal(t, StateSent, res.State)
	require.NotEmpty(t, res.TxID)
	require.Equal(t, uint64(7_500_000), res.Fee)
	require.Equal(t, uint64(75), res.FeeBps)
	require.Equal(t, order[1:], states)

	require.Equal(t, types.StatusSpent, e.stored(t, res.Note.Commitment).Status)
	require.True(t, e.ledger.FindNoteNullifier(res.Nullifier))
	require.Equal(t, uint64(0), e.ledger.PoolBalance())

	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.flows.WithLabelValues("execute", "send", "sent")))

	// the same note cannot be spent twice
	_, err = e.runner.Spend(context.Background(), res.Note.Commitment, Send(to))
	require.ErrorIs(t, err, types.ErrNoteState)
}

func TestRunner_RelayCompleted(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)
	e.ledger.SetRelayScript(
		relay.JobStatus{Status: relay.StatusQueued},
		relay.JobStatus{Status: relay.StatusProcessing},
		relay.JobStatus{Status: relay.StatusCompleted, TxID: "abc"},
	)

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.NoError(t, err)
	require.Equal(t, StateSent, res.State)
	require.Equal(t, "abc", res.TxID)
	require.Equal(t, types.StatusSpent, e.stored(t, note.Commitment).Status)
}

func TestRunner_CompletedWithoutProcessing(t *testing.T) {
	var states []State
	e := newEnv(t, func(_ *Deps, o *Options) {
		o.Observer = func(tr Transition) { states = append(states, tr.To) }
	})
	note := e.deposit(t, 50_000_000)
	states = nil
	e.ledger.SetRelayScript(relay.JobStatus{Status: relay.StatusCompleted, TxID: "abc"})

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.NoError(t, err)
	require.Equal(t, "abc", res.TxID)
	require.Equal(t, []State{StateGeneratingProof, StateProofGenerated, StateQueued, StateBeingMined, StateMined, StateSent}, states)
}

func TestRunner_RelayFailed(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)
	e.ledger.SetRelayScript(
		relay.JobStatus{Status: relay.StatusQueued},
		relay.JobStatus{Status: relay.StatusFailed, Error: "x"},
	)

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrRelayFailed)
	require.ErrorContains(t, err, "x")
	require.Equal(t, StateError, res.State)
	require.Empty(t, res.TxID)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	require.Equal(t, "x", te.Message)
	require.Equal(t, "relay.status", te.Call)

	// nothing landed, so the note stays spendable
	n := e.stored(t, note.Commitment)
	require.Equal(t, types.StatusDeposited, n.Status)
	require.False(t, e.ledger.FindNoteNullifier(res.Nullifier))
}

// noTxRelay reports completed jobs without their transaction id.
type noTxRelay struct {
	*node.Ledger
}

func (r noTxRelay) Status(ctx context.Context, requestID string) (*relay.JobStatus, error) {
	st, err := r.Ledger.Status(ctx, requestID)
	if err != nil {
		return nil, err
	}
	st.TxID = ""
	return st, nil
}

func TestRunner_CompletedWithoutTxID(t *testing.T) {
	e := newEnv(t, nil)
	e.runner.deps.Relay = noTxRelay{e.ledger}
	note := e.deposit(t, 1_000_000_000)

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrExternalService)
	require.ErrorContains(t, err, "without a transaction id")
	require.Equal(t, StateError, res.State)
	require.Empty(t, res.TxID)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	require.Equal(t, "relay.status", te.Call)
	require.Equal(t, string(StateBeingMined), te.Step)
	require.Equal(t, types.StatusDeposited, e.stored(t, note.Commitment).Status)
}

func TestRunner_RelayTimeout(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)
	e.ledger.SetRelayScript(relay.JobStatus{Status: relay.StatusQueued})

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrTimeout)
	require.NotErrorIs(t, err, types.ErrRelayFailed)
	require.ErrorIs(t, err, poll.ErrExhausted)
	require.Equal(t, StateError, res.State)
	require.Equal(t, types.StatusDeposited, e.stored(t, note.Commitment).Status)
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, func(_ *Deps, o *Options) {
		o.Observer = func(tr Transition) {
			if tr.To == StateQueued {
				cancel()
			}
		}
	})
	note := e.deposit(t, 1_000_000_000)
	e.ledger.SetRelayScript(relay.JobStatus{Status: relay.StatusQueued})

	res, err := e.runner.Spend(ctx, note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateError, res.State)
	require.Equal(t, types.StatusDeposited, e.stored(t, note.Commitment).Status)
	require.False(t, e.runner.Guard().InFlight(note.Commitment))
}

func TestRunner_DepositTimeout(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.SetConfirmAfter(100)

	res, err := e.runner.Deposit(context.Background(), 1_000_000_000)
	require.ErrorIs(t, err, types.ErrTimeout)
	require.Equal(t, StateError, res.State)

	// the note is kept for recovery but carries nothing unconfirmed
	n := e.stored(t, res.Note.Commitment)
	require.Equal(t, types.StatusGenerated, n.Status)
	require.Empty(t, n.DepositSignature)
	require.Nil(t, n.LeafIndex)
}

// rejectingChain lands deposits with a program error.
type rejectingChain struct {
	*node.Ledger
	code uint32
}

func (c rejectingChain) SignatureStatus(ctx context.Context, sig string) (*solana.SignatureStatus, error) {
	return &solana.SignatureStatus{
		Slot: 42,
		Err:  json.RawMessage(fmt.Sprintf(`{"InstructionError":[0,{"Custom":%d}]}`, c.code)),
	}, nil
}

func TestRunner_DepositProgramError(t *testing.T) {
	e := newEnv(t, func(d *Deps, _ *Options) {
		d.Chain = rejectingChain{Ledger: d.Chain.(*node.Ledger), code: 0x1035}
	})

	res, err := e.runner.Deposit(context.Background(), 1_000_000_000)
	require.ErrorIs(t, err, types.ErrExternalService)
	require.ErrorContains(t, err, "commitment already exists in the tree")
	require.Equal(t, StateError, res.State)

	var te *solana.TransactionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, solana.ProgramError(0x1035), *te.Custom)

	var ce *types.Error
	require.True(t, errors.As(err, &ce))
	require.Equal(t, string(StateDepositing), ce.Step)
	require.Equal(t, "solana.signature_status", ce.Call)
	require.Equal(t, types.StatusGenerated, e.stored(t, res.Note.Commitment).Status)
}

func TestRunner_InFlight(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)

	release, err := e.runner.Guard().Acquire(note.Commitment)
	require.NoError(t, err)
	_, err = e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrInFlight)
	release()

	_, err = e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.NoError(t, err)
}

func TestRunner_StaleProofRefreshed(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)

	// corrupt the cached path so it no longer reaches its root
	bad := note.MerkleProof.Clone()
	bad.PathElements[0] = randHex()
	require.NoError(t, e.store.Update(context.Background(), note.Commitment, store.Patch{MerkleProof: bad}))

	// the tree moves on as well
	other := e.deposit(t, 20_000_000)
	require.Equal(t, uint32(1), *other.LeafIndex)

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.NoError(t, err)
	require.Equal(t, StateSent, res.State)

	n := e.stored(t, note.Commitment)
	require.NotEqual(t, bad.PathElements[0], n.MerkleProof.PathElements[0])
	require.NoError(t, merkle.Verify(n.Commitment, merkle.FromPath(n.Root, n.MerkleProof)))
}

type badProofIndexer struct {
	*node.Ledger
	calls int
}

func (b *badProofIndexer) MerkleProof(ctx context.Context, leafIndex uint32) (*merkle.Proof, error) {
	b.calls++
	p, err := b.Ledger.MerkleProof(ctx, leafIndex)
	if err != nil {
		return nil, err
	}
	p.PathElements[0] = randHex()
	return p, nil
}

type countingProver struct {
	prover.Generator
	calls int
	err   error
}

func (c *countingProver) GenerateProof(ctx context.Context, in *prover.Inputs) (*prover.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Generator.GenerateProof(ctx, in)
}

func TestRunner_ProofInconsistency(t *testing.T) {
	var (
		idx *badProofIndexer
		gen *countingProver
	)
	e := newEnv(t, func(d *Deps, _ *Options) {
		gen = &countingProver{Generator: d.Prover}
		d.Prover = gen
	})
	note := e.deposit(t, 1_000_000_000)

	idx = &badProofIndexer{Ledger: e.ledger}
	bad := note.MerkleProof.Clone()
	bad.PathElements[0] = randHex()
	require.NoError(t, e.store.Update(context.Background(), note.Commitment, store.Patch{MerkleProof: bad}))

	deps := e.deps
	deps.Indexer = idx
	r := NewRunner(deps, e.opts, zerolog.Nop(), nil)

	res, err := r.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrProofInconsistency)
	require.Equal(t, StateError, res.State)
	require.Equal(t, 1, idx.calls)
	require.Equal(t, 0, gen.calls)
}

func TestRunner_ProverFailure(t *testing.T) {
	var gen *countingProver
	e := newEnv(t, func(d *Deps, _ *Options) {
		gen = &countingProver{Generator: d.Prover}
		d.Prover = gen
	})
	note := e.deposit(t, 1_000_000_000)
	gen.err = &types.Error{Kind: types.KindExternalService, Message: "circuit constraint 17 unsatisfied"}

	res, err := e.runner.Spend(context.Background(), note.Commitment, Send(recipient()))
	require.ErrorContains(t, err, "circuit constraint 17 unsatisfied")
	require.Equal(t, StateError, res.State)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	require.Equal(t, string(StateGeneratingProof), te.Step)
	require.Equal(t, types.StatusDeposited, e.stored(t, note.Commitment).Status)
}

func TestRunner_Conservation(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)

	req := &Request{Mode: types.ModeSend, Outputs: []fee.Output{
		{Recipient: recipient(), Amount: 500_000_000},
		{Recipient: recipient(), Amount: 500_000_000},
	}}
	_, err := e.runner.Spend(context.Background(), note.Commitment, req)
	require.ErrorIs(t, err, types.ErrConservation)

	req.Outputs[1].Amount = 492_500_000
	res, err := e.runner.Spend(context.Background(), note.Commitment, req)
	require.NoError(t, err)
	require.Equal(t, StateSent, res.State)
}

func TestRunner_Modes(t *testing.T) {
	requests := []*Request{
		{Mode: types.ModeSwap, Swap: &SwapRequest{
			OutputMint:      recipient(),
			Recipient:       recipient(),
			RecipientATA:    recipient(),
			MinOutputAmount: 12_345,
		}},
		{Mode: types.ModeStake, Stake: &StakeRequest{
			StakeAccount:         recipient(),
			StakeAuthority:       recipient(),
			ValidatorVoteAccount: recipient(),
		}},
		{Mode: types.ModeUnstake, Unstake: &UnstakeRequest{
			StakeAccount: recipient(),
			Recipient:    recipient(),
		}},
	}
	for _, req := range requests {
		t.Run(string(req.Mode), func(t *testing.T) {
			e := newEnv(t, nil)
			res, err := e.runner.Execute(context.Background(), 3_000_000_000, req)
			require.NoError(t, err)
			require.Equal(t, StateSent, res.State)
			require.Equal(t, req.Mode, res.Mode)
			require.Equal(t, fee.FeeBps(3_000_000_000, req.Mode), res.FeeBps)
		})
	}
}

func TestRunner_MalformedRequests(t *testing.T) {
	e := newEnv(t, nil)
	note := e.deposit(t, 1_000_000_000)

	for _, req := range []*Request{
		nil,
		{Mode: types.ModeSend},
		{Mode: types.ModeSwap},
		{Mode: types.ModeStake, Stake: &StakeRequest{}},
		{Mode: "bridge"},
	} {
		_, err := e.runner.Spend(context.Background(), note.Commitment, req)
		require.ErrorIs(t, err, types.ErrMalformedInput)
	}

	_, err := e.runner.Spend(context.Background(), "00"+note.Commitment[2:], Send(recipient()))
	require.ErrorIs(t, err, types.ErrNoteState)

	small, err := e.runner.Deposit(context.Background(), 2_000_000)
	require.NoError(t, err)
	_, err = e.runner.Spend(context.Background(), small.Note.Commitment, Send(recipient()))
	require.ErrorIs(t, err, types.ErrMalformedInput)
}
