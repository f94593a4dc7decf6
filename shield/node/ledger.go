package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/kysee/cloak/shield/indexer"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/solana"
	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownSignature  = errors.New("unknown transaction signature")
	ErrDuplicateLeaf     = errors.New("commitment already in the tree")
	ErrNullifierUsed     = errors.New("nullifier already exists")
	ErrUnknownRoot       = errors.New("root is not a known tree root")
	ErrDepositMismatch   = errors.New("deposit does not match the registered transaction")
	ErrInvalidProofBytes = errors.New("invalid proof")
)

type deposit struct {
	amount     uint64
	commitment string
	slot       uint64
	polls      int
}

// Ledger is an in-process stand-in for the pool program, the indexer and
// the relay. It keeps the commitment tree, every root the tree has had, the
// nullifier set and the encrypted outputs.
type Ledger struct {
	mtx sync.Mutex

	tree           *merkle.Tree
	leaves         map[string]uint32
	roots          map[string]struct{}
	encryptedNotes []string
	nullifiers     map[string]struct{}
	deposits       map[string]*deposit
	jobs           map[string]*job
	script         []relay.JobStatus
	slot           uint64
	poolBalance    uint64
	confirmAfter   int

	logger zerolog.Logger
}

var (
	_ indexer.Indexer = (*Ledger)(nil)
	_ relay.Relay     = (*Ledger)(nil)
	_ solana.Chain    = (*Ledger)(nil)
)

func NewLedger(depth int, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		tree:         merkle.NewTree(depth),
		leaves:       make(map[string]uint32),
		roots:        make(map[string]struct{}),
		nullifiers:   make(map[string]struct{}),
		deposits:     make(map[string]*deposit),
		jobs:         make(map[string]*job),
		slot:         1,
		confirmAfter: 1,
		logger:       logger.With().Str("module", "ledger").Logger(),
	}
	l.roots[hex.EncodeToString(l.tree.Root())] = struct{}{}
	return l
}

// SetConfirmAfter sets how many status polls a deposit takes to confirm.
func (l *Ledger) SetConfirmAfter(n int) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.confirmAfter = n
}

func (l *Ledger) PoolBalance() uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.poolBalance
}

func (l *Ledger) Tree() *merkle.Tree {
	return l.tree
}

func newSignature() string {
	return base58.Encode(types.RandBytes(64))
}

//
// Chain

func (l *Ledger) SubmitDeposit(ctx context.Context, amount uint64, commitment [32]byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return l.ProcessDeposit(solana.DepositInstructionData(amount, commitment))
}

// ProcessDeposit executes a pool deposit instruction and returns the
// signature of the transaction that carried it.
func (l *Ledger) ProcessDeposit(data []byte) (string, error) {
	amount, commitment, err := solana.ParseDepositInstruction(data)
	if err != nil {
		return "", err
	}
	if amount == 0 {
		return "", errors.New("deposit instruction: zero amount")
	}
	sig := newSignature()

	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.slot++
	l.deposits[sig] = &deposit{amount: amount, commitment: hex.EncodeToString(commitment[:]), slot: l.slot}
	l.poolBalance += amount
	return sig, nil
}

func (l *Ledger) SignatureStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	d, ok := l.deposits[signature]
	if !ok {
		return nil, nil
	}
	d.polls++
	status := solana.CommitmentProcessed
	if d.polls >= l.confirmAfter {
		status = solana.CommitmentConfirmed
	}
	return &solana.SignatureStatus{Slot: d.slot, ConfirmationStatus: status}, nil
}

//
// Indexer

func (l *Ledger) Deposit(ctx context.Context, req *indexer.DepositRequest) (*indexer.DepositResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := types.DecodeEncryptedNote(req.EncryptedOutput); err != nil {
		return nil, err
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	d, ok := l.deposits[req.TxSignature]
	if !ok {
		return nil, ErrUnknownSignature
	}
	leafCommit := strings.ToLower(req.LeafCommit)
	if d.commitment != leafCommit || d.slot != req.Slot {
		return nil, ErrDepositMismatch
	}
	idx, err := l.addCommitment(leafCommit)
	if err != nil {
		return nil, err
	}
	l.encryptedNotes = append(l.encryptedNotes, req.EncryptedOutput)

	root := hex.EncodeToString(l.tree.Root())
	l.logger.Debug().Uint32("leaf_index", idx).Str("root", root).Msg("commitment appended")
	return &indexer.DepositResult{LeafIndex: idx, Root: root}, nil
}

// AddNoteCommitment appends a commitment with no deposit behind it.
func (l *Ledger) AddNoteCommitment(commitment string) (uint32, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.addCommitment(strings.ToLower(commitment))
}

func (l *Ledger) addCommitment(commitment string) (uint32, error) {
	if _, ok := l.leaves[commitment]; ok {
		return 0, ErrDuplicateLeaf
	}
	bz, err := hex.DecodeString(commitment)
	if err != nil {
		return 0, fmt.Errorf("invalid commitment: %w", err)
	}
	idx, err := l.tree.Append(bz)
	if err != nil {
		return 0, err
	}
	l.leaves[commitment] = idx
	l.roots[hex.EncodeToString(l.tree.Root())] = struct{}{}
	return idx, nil
}

// AddEncryptedNote publishes an encrypted output without a tree leaf, as
// happens for notes shared with another wallet.
func (l *Ledger) AddEncryptedNote(encoded string) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.encryptedNotes = append(l.encryptedNotes, encoded)
}

func (l *Ledger) MerkleProof(ctx context.Context, leafIndex uint32) (*merkle.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.tree.Proof(leafIndex)
}

func (l *Ledger) MerkleRoot(ctx context.Context) (*indexer.RootInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return &indexer.RootInfo{
		Root:      hex.EncodeToString(l.tree.Root()),
		NextIndex: uint64(len(l.encryptedNotes)),
	}, nil
}

func (l *Ledger) NotesRange(ctx context.Context, start, end uint64, limit int) (*indexer.NotesRange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	total := uint64(len(l.encryptedNotes))
	ret := &indexer.NotesRange{Total: total, Start: start, End: end, Notes: []string{}}
	for i := start; i <= end && i < total; i++ {
		if limit > 0 && len(ret.Notes) >= limit {
			break
		}
		ret.Notes = append(ret.Notes, l.encryptedNotes[i])
	}
	ret.HasMore = end+1 < total
	return ret, nil
}

func (l *Ledger) FindNoteNullifier(nf string) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	_, ok := l.nullifiers[strings.ToLower(nf)]
	return ok
}

func (l *Ledger) knownRoot(root string) bool {
	_, ok := l.roots[strings.ToLower(root)]
	return ok
}
