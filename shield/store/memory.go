package store

import (
	"context"
	"sync"

	"github.com/kysee/cloak/shield/types"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	mtx   sync.RWMutex
	notes map[string]*types.Note
}

var _ NoteStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string]*types.Note)}
}

func (s *MemoryStore) Save(_ context.Context, note *types.Note) error {
	n, err := prepare(note)
	if err != nil {
		return errors.Wrap(err, "save note")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.notes[key(n.Commitment)]; ok {
		return ErrDuplicate
	}
	s.notes[key(n.Commitment)] = n
	return nil
}

func (s *MemoryStore) Update(_ context.Context, commitment string, patch Patch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if n, ok := s.notes[key(commitment)]; ok {
		patch.apply(n)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, commitment string) (*types.Note, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	n, ok := s.notes[key(commitment)]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]*types.Note, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ret := make([]*types.Note, 0, len(s.notes))
	for _, n := range s.notes {
		ret = append(ret, n.Clone())
	}
	sortNotes(ret)
	return ret, nil
}

func (s *MemoryStore) LoadSpendable(ctx context.Context) ([]*types.Note, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return spendable(all), nil
}

func (s *MemoryStore) Delete(_ context.Context, commitment string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.notes, key(commitment))
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
