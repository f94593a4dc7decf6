package store

import (
	"context"
	"sort"
	"strings"

	"github.com/kysee/cloak/shield/types"
	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("note not found")
	ErrDuplicate = errors.New("note with this commitment already exists")
	ErrClosed    = errors.New("note store is closed")
)

// NoteStore is a commitment-keyed collection of notes.
// Save never overwrites. Update merges fields into an existing note and is
// a no-op when the commitment is unknown. A note's status never moves
// backwards.
type NoteStore interface {
	Save(ctx context.Context, note *types.Note) error
	Update(ctx context.Context, commitment string, patch Patch) error
	Get(ctx context.Context, commitment string) (*types.Note, error)
	LoadAll(ctx context.Context) ([]*types.Note, error)
	LoadSpendable(ctx context.Context) ([]*types.Note, error)
	Delete(ctx context.Context, commitment string) error
	Close() error
}

// Patch lists the fields to merge into a stored note. Nil fields are left alone.
type Patch struct {
	DepositSignature *string
	DepositSlot      *uint64
	LeafIndex        *uint32
	Root             *string
	MerkleProof      *types.MerklePath
	Status           *types.Status
}

func (p Patch) apply(n *types.Note) {
	if p.DepositSignature != nil {
		n.DepositSignature = *p.DepositSignature
	}
	if p.DepositSlot != nil {
		slot := *p.DepositSlot
		n.DepositSlot = &slot
	}
	if p.LeafIndex != nil {
		idx := *p.LeafIndex
		n.LeafIndex = &idx
	}
	if p.Root != nil {
		n.Root = strings.ToLower(*p.Root)
	}
	if p.MerkleProof != nil {
		n.MerkleProof = p.MerkleProof.Clone()
	}
	if p.Status != nil && n.Status.CanAdvanceTo(*p.Status) {
		n.Status = *p.Status
	}
}

func StatusPatch(s types.Status) Patch {
	return Patch{Status: &s}
}

func key(commitment string) string {
	return strings.ToLower(commitment)
}

func prepare(note *types.Note) (*types.Note, error) {
	if note == nil {
		return nil, errors.New("nil note")
	}
	n := note.Clone()
	if n.Status == "" {
		n.Status = types.StatusGenerated
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func sortNotes(notes []*types.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Timestamp != notes[j].Timestamp {
			return notes[i].Timestamp < notes[j].Timestamp
		}
		return notes[i].Commitment < notes[j].Commitment
	})
}

func spendable(notes []*types.Note) []*types.Note {
	var ret []*types.Note
	for _, n := range notes {
		if n.IsSpendable() {
			ret = append(ret, n)
		}
	}
	return ret
}

// Open returns the backend named by kind, rooted at path.
func Open(kind, path string) (NoteStore, error) {
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(path)
	case "pebble":
		return NewPebbleStore(path)
	default:
		return nil, errors.Errorf("unknown note store backend %q", kind)
	}
}
