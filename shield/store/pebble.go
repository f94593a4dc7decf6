package store

import (
	"context"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/cloak/shield/types"
	"github.com/pkg/errors"
)

var notePrefix = []byte("note/")

func noteKey(commitment string) ([]byte, error) {
	cm, err := hex.DecodeString(key(commitment))
	if err != nil || len(cm) != 32 {
		return nil, errors.Errorf("invalid commitment %q", commitment)
	}
	return append(slices.Clone(notePrefix), cm...), nil
}

// prefixEnd is the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// PebbleStore persists RLP-encoded notes in a pebble database.
type PebbleStore struct {
	mtx sync.Mutex
	db  *pebble.DB
}

var _ NoteStore = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	return OpenPebbleStore(path, &pebble.Options{})
}

func OpenPebbleStore(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open pebble store")
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) get(k []byte) (*types.Note, error) {
	data, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get note")
	}
	copied := slices.Clone(data)
	closer.Close()
	return decodeNote(copied)
}

func (s *PebbleStore) put(k []byte, n *types.Note) error {
	data, err := encodeNote(n)
	if err != nil {
		return errors.Wrap(err, "put note")
	}
	return errors.Wrap(s.db.Set(k, data, pebble.Sync), "put note")
}

func (s *PebbleStore) Save(_ context.Context, note *types.Note) error {
	n, err := prepare(note)
	if err != nil {
		return errors.Wrap(err, "save note")
	}
	k, err := noteKey(n.Commitment)
	if err != nil {
		return errors.Wrap(err, "save note")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, err := s.get(k); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.put(k, n)
}

func (s *PebbleStore) Update(_ context.Context, commitment string, patch Patch) error {
	k, err := noteKey(commitment)
	if err != nil {
		return errors.Wrap(err, "update note")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	n, err := s.get(k)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	patch.apply(n)
	return s.put(k, n)
}

func (s *PebbleStore) Get(_ context.Context, commitment string) (*types.Note, error) {
	k, err := noteKey(commitment)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.get(k)
}

func (s *PebbleStore) LoadAll(_ context.Context) ([]*types.Note, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: notePrefix,
		UpperBound: prefixEnd(notePrefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "load notes")
	}

	var notes []*types.Note
	for iter.First(); iter.Valid(); iter.Next() {
		n, err := decodeNote(slices.Clone(iter.Value()))
		if err != nil {
			iter.Close()
			return nil, errors.Wrapf(err, "load notes: key %x", iter.Key())
		}
		notes = append(notes, n)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "load notes")
	}
	sortNotes(notes)
	return notes, nil
}

func (s *PebbleStore) LoadSpendable(ctx context.Context) ([]*types.Note, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return spendable(all), nil
}

func (s *PebbleStore) Delete(_ context.Context, commitment string) error {
	k, err := noteKey(commitment)
	if err != nil {
		return nil
	}
	return errors.Wrap(s.db.Delete(k, pebble.Sync), "delete note")
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

//
// record codec

type noteRecord struct {
	Version          string
	Amount           uint64
	Commitment       []byte
	SkSpend          []byte
	R                []byte
	DepositSignature string
	HasSlot          bool
	DepositSlot      uint64
	HasLeaf          bool
	LeafIndex        uint32
	Root             []byte
	HasPath          bool
	PathElements     [][]byte
	PathIndices      []uint8
	Timestamp        uint64
	Network          string
	Status           string
}

func encodeNote(n *types.Note) ([]byte, error) {
	rec := &noteRecord{
		Version:          n.Version,
		Amount:           n.Amount,
		DepositSignature: n.DepositSignature,
		Timestamp:        uint64(n.Timestamp),
		Network:          string(n.Network),
		Status:           string(n.Status),
	}
	var err error
	if rec.Commitment, err = hex.DecodeString(n.Commitment); err != nil {
		return nil, err
	}
	if rec.SkSpend, err = hex.DecodeString(n.SkSpend); err != nil {
		return nil, err
	}
	if rec.R, err = hex.DecodeString(n.R); err != nil {
		return nil, err
	}
	if rec.Root, err = hex.DecodeString(n.Root); err != nil {
		return nil, err
	}
	if n.DepositSlot != nil {
		rec.HasSlot, rec.DepositSlot = true, *n.DepositSlot
	}
	if n.LeafIndex != nil {
		rec.HasLeaf, rec.LeafIndex = true, *n.LeafIndex
	}
	if p := n.MerkleProof; p != nil {
		rec.HasPath = true
		for _, el := range p.PathElements {
			bz, err := hex.DecodeString(el)
			if err != nil {
				return nil, err
			}
			rec.PathElements = append(rec.PathElements, bz)
		}
		for _, idx := range p.PathIndices {
			rec.PathIndices = append(rec.PathIndices, uint8(idx))
		}
	}
	return rlp.EncodeToBytes(rec)
}

func decodeNote(bz []byte) (*types.Note, error) {
	rec := &noteRecord{}
	if err := rlp.DecodeBytes(bz, rec); err != nil {
		return nil, errors.Wrap(err, "decode note record")
	}
	n := &types.Note{
		Version:          rec.Version,
		Amount:           rec.Amount,
		Commitment:       hex.EncodeToString(rec.Commitment),
		SkSpend:          hex.EncodeToString(rec.SkSpend),
		R:                hex.EncodeToString(rec.R),
		DepositSignature: rec.DepositSignature,
		Root:             hex.EncodeToString(rec.Root),
		Timestamp:        int64(rec.Timestamp),
		Network:          types.Network(rec.Network),
		Status:           types.Status(rec.Status),
	}
	if rec.HasSlot {
		slot := rec.DepositSlot
		n.DepositSlot = &slot
	}
	if rec.HasLeaf {
		idx := rec.LeafIndex
		n.LeafIndex = &idx
	}
	if rec.HasPath {
		p := &types.MerklePath{
			PathElements: make([]string, 0, len(rec.PathElements)),
			PathIndices:  make([]int, 0, len(rec.PathIndices)),
		}
		for _, el := range rec.PathElements {
			p.PathElements = append(p.PathElements, hex.EncodeToString(el))
		}
		for _, idx := range rec.PathIndices {
			p.PathIndices = append(p.PathIndices, int(idx))
		}
		n.MerkleProof = p
	}
	return n, nil
}
