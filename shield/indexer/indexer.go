package indexer

import (
	"context"
	"fmt"

	"github.com/kysee/cloak/shield/merkle"
)

const NotesBatchSize = 100

type DepositRequest struct {
	LeafCommit      string `json:"leaf_commit"`
	EncryptedOutput string `json:"encrypted_output"`
	TxSignature     string `json:"tx_signature"`
	Slot            uint64 `json:"slot"`
}

type DepositResult struct {
	LeafIndex uint32
	Root      string
}

type RootInfo struct {
	Root      string `json:"root"`
	NextIndex uint64 `json:"next_index"`
}

type NotesRange struct {
	Notes   []string `json:"notes"`
	HasMore bool     `json:"has_more"`
	Total   uint64   `json:"total"`
	Start   uint64   `json:"start"`
	End     uint64   `json:"end"`
}

// Indexer appends commitments to the pool tree and serves membership proofs
// and encrypted outputs.
type Indexer interface {
	Deposit(ctx context.Context, req *DepositRequest) (*DepositResult, error)
	MerkleProof(ctx context.Context, leafIndex uint32) (*merkle.Proof, error)
	MerkleRoot(ctx context.Context) (*RootInfo, error)
	NotesRange(ctx context.Context, start, end uint64, limit int) (*NotesRange, error)
}

// FetchAllNotes pages through every encrypted output the indexer holds.
func FetchAllNotes(ctx context.Context, idx Indexer) ([]string, error) {
	info, err := idx.MerkleRoot(ctx)
	if err != nil {
		return nil, err
	}
	total := info.NextIndex
	var notes []string
	for start := uint64(0); start < total; start += NotesBatchSize {
		end := min(start+NotesBatchSize-1, total-1)
		page, err := idx.NotesRange(ctx, start, end, NotesBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch notes %d..%d: %w", start, end, err)
		}
		notes = append(notes, page.Notes...)
	}
	return notes, nil
}
