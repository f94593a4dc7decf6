package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/indexer"
	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
	"github.com/rs/zerolog"
)

// Wallet owns a key set and the notes it can spend.
type Wallet struct {
	keys    *crypto.KeySet
	store   store.NoteStore
	network types.Network
	logger  zerolog.Logger
}

func New(keys *crypto.KeySet, s store.NoteStore, network types.Network, logger zerolog.Logger) *Wallet {
	return &Wallet{
		keys:    keys,
		store:   s,
		network: network,
		logger:  logger.With().Str("module", "wallet").Logger(),
	}
}

func (w *Wallet) Keys() *crypto.KeySet {
	return w.keys
}

func (w *Wallet) Store() store.NoteStore {
	return w.store
}

// PublicViewKey is the hex pvk others encrypt notes to.
func (w *Wallet) PublicViewKey() string {
	return hex.EncodeToString(w.keys.View.Public[:])
}

// NewNote creates and stores a note for amount owned by this wallet.
func (w *Wallet) NewNote(ctx context.Context, amount uint64) (*types.Note, error) {
	note, err := types.NewNote(amount, &w.keys.Spend, w.network)
	if err != nil {
		return nil, err
	}
	if err := w.store.Save(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (w *Wallet) SpendableBalance(ctx context.Context) (*uint256.Int, error) {
	notes, err := w.store.LoadSpendable(ctx)
	if err != nil {
		return nil, err
	}
	ret := uint256.NewInt(0)
	for _, n := range notes {
		ret.Add(ret, uint256.NewInt(n.Amount))
	}
	return ret, nil
}

// ShareNote encrypts note to another wallet's public view key, in the
// indexer's output encoding.
func (w *Wallet) ShareNote(note *types.Note, recipientPvk [32]byte) (string, error) {
	enc, err := types.EncryptNoteData(note.Data(), recipientPvk)
	if err != nil {
		return "", err
	}
	return types.EncodeEncryptedNote(enc)
}

// ScanAndImport trial-decrypts outputs and stores every note addressed to
// this wallet that it does not hold yet, as generated. It returns how many
// notes were added.
func (w *Wallet) ScanAndImport(ctx context.Context, outputs []string) (int, error) {
	count := 0
	for _, data := range types.ScanEncodedNotes(outputs, &w.keys.View) {
		_, outcome, err := w.importData(ctx, data, nil)
		if err != nil {
			return count, err
		}
		if outcome == imported {
			count++
		}
	}
	return count, nil
}

type importOutcome int

const (
	unchanged importOutcome = iota
	imported
	recovered
)

// importData saves data as a new note. A note already stored as generated is
// handed to deposit again and patched with whatever deposit finds, so a
// deposit that landed without being recorded here can still be recovered.
func (w *Wallet) importData(ctx context.Context, data *types.NoteData, deposit func(*types.Note) error) (types.Status, importOutcome, error) {
	existing, err := w.store.Get(ctx, data.Commitment)
	switch {
	case err == nil:
		return w.promote(ctx, existing, deposit)
	case !errors.Is(err, store.ErrNotFound):
		return "", unchanged, err
	}

	note, err := data.Note(w.network, time.Now().UnixMilli())
	if err != nil {
		return "", unchanged, err
	}
	if deposit != nil {
		if err := deposit(note); err != nil {
			return "", unchanged, err
		}
	}
	if err := w.store.Save(ctx, note); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return note.Status, unchanged, nil
		}
		return "", unchanged, err
	}
	w.logger.Info().
		Str("commitment", utils.Short(note.Commitment)).
		Uint64("amount", note.Amount).
		Str("status", string(note.Status)).
		Msg("note imported")
	return note.Status, imported, nil
}

func (w *Wallet) promote(ctx context.Context, existing *types.Note, deposit func(*types.Note) error) (types.Status, importOutcome, error) {
	if deposit == nil || existing.Status != types.StatusGenerated {
		return existing.Status, unchanged, nil
	}
	note := existing.Clone()
	if err := deposit(note); err != nil {
		return "", unchanged, err
	}
	if note.Status == types.StatusGenerated {
		return note.Status, unchanged, nil
	}
	patch := store.Patch{
		LeafIndex:   note.LeafIndex,
		Root:        &note.Root,
		MerkleProof: note.MerkleProof,
		Status:      &note.Status,
	}
	if err := w.store.Update(ctx, note.Commitment, patch); err != nil {
		return "", unchanged, err
	}
	w.logger.Info().
		Str("commitment", utils.Short(note.Commitment)).
		Uint32("leaf_index", *note.LeafIndex).
		Str("status", string(note.Status)).
		Msg("stored note recovered")
	return note.Status, recovered, nil
}

type SyncResult struct {
	Scanned  int
	Imported int
	// stored generated notes found on-chain
	Recovered int
	Deposited int
	Spent     int
}

// nullifierChecker is implemented by indexers that can tell whether a
// nullifier has been published.
type nullifierChecker interface {
	FindNoteNullifier(nf string) bool
}

// Sync pages through every encrypted output the indexer holds and imports
// the notes addressed to this wallet. Outputs are stored in leaf order, so a
// found note whose commitment verifies at its position is imported, or
// updated if it was stored as generated, as deposited with a fresh proof.
func (w *Wallet) Sync(ctx context.Context, idx indexer.Indexer) (*SyncResult, error) {
	outputs, err := indexer.FetchAllNotes(ctx, idx)
	if err != nil {
		return nil, types.WithStep(err, "sync", "indexer.notes_range")
	}
	nc, _ := idx.(nullifierChecker)

	res := &SyncResult{Scanned: len(outputs)}
	for i, out := range outputs {
		enc, err := types.DecodeEncryptedNote(out)
		if err != nil {
			continue
		}
		data, ok := types.TryDecryptNoteData(enc, &w.keys.View)
		if !ok {
			continue
		}

		leaf := uint32(i)
		status, outcome, err := w.importData(ctx, data, func(note *types.Note) error {
			proof, err := idx.MerkleProof(ctx, leaf)
			if err != nil {
				return types.WithStep(err, "sync", "indexer.merkle_proof")
			}
			if merkle.Verify(note.Commitment, proof) != nil {
				// not at this position; keep it as generated
				return nil
			}
			note.LeafIndex, note.Root, note.MerkleProof = &leaf, proof.Root, proof.Path()
			note.Status = types.StatusDeposited
			if nc != nil {
				nf, err := note.ComputeNullifier()
				if err != nil {
					return err
				}
				if nc.FindNoteNullifier(hex.EncodeToString(nf[:])) {
					note.Status = types.StatusSpent
				}
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		switch outcome {
		case unchanged:
			continue
		case imported:
			res.Imported++
		case recovered:
			res.Recovered++
		}
		switch status {
		case types.StatusDeposited:
			res.Deposited++
		case types.StatusSpent:
			res.Spent++
		}
	}
	w.logger.Info().Int("scanned", res.Scanned).Int("imported", res.Imported).Int("recovered", res.Recovered).Msg("sync done")
	return res, nil
}
