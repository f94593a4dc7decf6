package merkle

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
)

var (
	ErrRootMismatch   = errors.New("merkle root mismatch")
	ErrMalformedProof = errors.New("malformed merkle proof")
)

// Proof is the canonical form of an indexer membership proof.
// PathIndices[i] == 0 means the running node is the left child at level i.
type Proof struct {
	Root         string   `json:"root"`
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

func FromPath(root string, p *types.MerklePath) *Proof {
	if p == nil {
		return &Proof{Root: root}
	}
	cp := p.Clone()
	return &Proof{Root: root, PathElements: cp.PathElements, PathIndices: cp.PathIndices}
}

func (p *Proof) Path() *types.MerklePath {
	return (&types.MerklePath{PathElements: p.PathElements, PathIndices: p.PathIndices}).Clone()
}

func HashPair(left, right []byte) []byte {
	return utils.DefaultHashSum(left, right)
}

// RecomputeRoot folds the sibling path into the root it claims.
func RecomputeRoot(leaf []byte, elements [][]byte, indices []int) ([]byte, error) {
	if len(elements) != len(indices) {
		return nil, fmt.Errorf("%w: %d elements, %d indices", ErrMalformedProof, len(elements), len(indices))
	}
	cur := leaf
	for i, sib := range elements {
		switch indices[i] {
		case 0:
			cur = HashPair(cur, sib)
		case 1:
			cur = HashPair(sib, cur)
		default:
			return nil, fmt.Errorf("%w: path index %d is %d", ErrMalformedProof, i, indices[i])
		}
	}
	return cur, nil
}

// Verify checks that leafHex is a member of the tree rooted at p.Root.
// Hex strings are decoded and hashed as raw bytes.
func Verify(leafHex string, p *Proof) error {
	if p == nil {
		return fmt.Errorf("%w: no proof", ErrMalformedProof)
	}
	leaf, err := utils.DecodeHex32(leafHex)
	if err != nil {
		return fmt.Errorf("%w: leaf: %v", ErrMalformedProof, err)
	}
	root, err := utils.DecodeHex32(p.Root)
	if err != nil {
		return fmt.Errorf("%w: root: %v", ErrMalformedProof, err)
	}
	if len(p.PathElements) != len(p.PathIndices) {
		return fmt.Errorf("%w: %d elements, %d indices", ErrMalformedProof, len(p.PathElements), len(p.PathIndices))
	}

	// a tree holding a single leaf has no siblings and its root is the leaf
	if len(p.PathElements) == 0 {
		if subtle.ConstantTimeCompare(leaf[:], root[:]) != 1 {
			return fmt.Errorf("%w: empty path and leaf is not the root", ErrRootMismatch)
		}
		return nil
	}

	elements := make([][]byte, len(p.PathElements))
	for i, s := range p.PathElements {
		el, err := utils.DecodeHex32(s)
		if err != nil {
			return fmt.Errorf("%w: element %d: %v", ErrMalformedProof, i, err)
		}
		elements[i] = el[:]
	}
	computed, err := RecomputeRoot(leaf[:], elements, p.PathIndices)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computed, root[:]) != 1 {
		return fmt.Errorf("%w: computed %s, expected %s", ErrRootMismatch,
			utils.Short(utils.Hex(computed)), utils.Short(p.Root))
	}
	return nil
}

type FetchFunc func(ctx context.Context) (*Proof, error)

// VerifyWithRefresh verifies cached and, if it fails, fetches a fresh proof
// once. It returns the proof that verified and whether it was refetched.
// A second failure is a proof_inconsistency error.
func VerifyWithRefresh(ctx context.Context, leafHex string, cached *Proof, fetch FetchFunc) (*Proof, bool, error) {
	var firstErr error
	if cached != nil {
		if firstErr = Verify(leafHex, cached); firstErr == nil {
			return cached, false, nil
		}
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return nil, false, types.WithStep(err, "", "indexer.merkle_proof")
	}
	if err := Verify(leafHex, fresh); err != nil {
		msg := "merkle proof does not verify after refetch"
		if firstErr == nil {
			msg = "fetched merkle proof does not verify"
		}
		return nil, true, &types.Error{Kind: types.KindProofInconsistency, Message: msg, Err: err}
	}
	return fresh, true, nil
}
