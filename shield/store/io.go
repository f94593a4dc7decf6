package store

import (
	"context"
	"encoding/json"

	"github.com/kysee/cloak/shield/types"
)

// ImportNote validates a note exported by any client and saves it.
// A malformed note is rejected before it reaches the store.
func ImportNote(ctx context.Context, s NoteStore, bz []byte) (*types.Note, error) {
	note, err := types.ParseNote(bz)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func ExportNote(note *types.Note) ([]byte, error) {
	return json.MarshalIndent(note, "", "  ")
}

// ExportFileName is the name the web client gives downloaded notes.
func ExportFileName(note *types.Note) string {
	cm := note.Commitment
	if len(cm) > 8 {
		cm = cm[:8]
	}
	return "cloak-note-" + cm + ".json"
}
