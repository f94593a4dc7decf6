package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kysee/cloak/shield/types"
	"github.com/pkg/errors"
)

// FileStore keeps every note in one JSON array, the same shape the web
// client exports. Each write replaces the file atomically.
type FileStore struct {
	mtx  sync.Mutex
	path string
}

var _ NoteStore = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "open file store")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) read() ([]*types.Note, error) {
	bz, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read notes")
	}
	if len(bz) == 0 {
		return nil, nil
	}
	var notes []*types.Note
	if err := json.Unmarshal(bz, &notes); err != nil {
		return nil, errors.Wrap(err, "decode notes")
	}
	return notes, nil
}

func (s *FileStore) write(notes []*types.Note) error {
	if notes == nil {
		notes = []*types.Note{}
	}
	bz, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode notes")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "write notes")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(bz); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write notes")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write notes")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write notes")
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Wrap(err, "write notes")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "write notes")
}

func find(notes []*types.Note, commitment string) int {
	for i, n := range notes {
		if key(n.Commitment) == key(commitment) {
			return i
		}
	}
	return -1
}

func (s *FileStore) Save(_ context.Context, note *types.Note) error {
	n, err := prepare(note)
	if err != nil {
		return errors.Wrap(err, "save note")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	notes, err := s.read()
	if err != nil {
		return err
	}
	if find(notes, n.Commitment) >= 0 {
		return ErrDuplicate
	}
	return s.write(append(notes, n))
}

func (s *FileStore) Update(_ context.Context, commitment string, patch Patch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	notes, err := s.read()
	if err != nil {
		return err
	}
	i := find(notes, commitment)
	if i < 0 {
		return nil
	}
	patch.apply(notes[i])
	return s.write(notes)
}

func (s *FileStore) Get(_ context.Context, commitment string) (*types.Note, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	notes, err := s.read()
	if err != nil {
		return nil, err
	}
	i := find(notes, commitment)
	if i < 0 {
		return nil, ErrNotFound
	}
	return notes[i], nil
}

func (s *FileStore) LoadAll(_ context.Context) ([]*types.Note, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	notes, err := s.read()
	if err != nil {
		return nil, err
	}
	sortNotes(notes)
	return notes, nil
}

func (s *FileStore) LoadSpendable(ctx context.Context) ([]*types.Note, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return spendable(all), nil
}

func (s *FileStore) Delete(_ context.Context, commitment string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	notes, err := s.read()
	if err != nil {
		return err
	}
	i := find(notes, commitment)
	if i < 0 {
		return nil
	}
	return s.write(append(notes[:i], notes[i+1:]...))
}

func (s *FileStore) Close() error {
	return nil
}
