package merkle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kysee/cloak/utils"
)

const DefaultDepth = 32

var ErrTreeFull = errors.New("merkle tree is full")

// Tree is an append-only binary tree of fixed depth. Empty positions hold
// the zero subtree of their level: zeros[0] is 32 zero bytes and
// zeros[i+1] = HashPair(zeros[i], zeros[i]).
type Tree struct {
	mtx    sync.RWMutex
	depth  int
	zeros  [][]byte
	levels [][][]byte // levels[0] are the leaves
}

func NewTree(depth int) *Tree {
	if depth <= 0 || depth > DefaultDepth {
		panic(fmt.Sprintf("merkle: invalid depth %d", depth))
	}
	zeros := make([][]byte, depth+1)
	zeros[0] = make([]byte, utils.HashSize)
	for i := 0; i < depth; i++ {
		zeros[i+1] = HashPair(zeros[i], zeros[i])
	}
	return &Tree{
		depth:  depth,
		zeros:  zeros,
		levels: make([][][]byte, depth+1),
	}
}

func (t *Tree) Depth() int {
	return t.depth
}

func (t *Tree) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.levels[0])
}

// Append adds leaf and returns its index.
func (t *Tree) Append(leaf []byte) (uint32, error) {
	if len(leaf) != utils.HashSize {
		return 0, fmt.Errorf("invalid leaf size: must be %d bytes", utils.HashSize)
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	idx := len(t.levels[0])
	if uint64(idx) >= uint64(1)<<t.depth {
		return 0, ErrTreeFull
	}
	t.levels[0] = append(t.levels[0], append([]byte(nil), leaf...))

	pos := idx
	for lvl := 0; lvl < t.depth; lvl++ {
		left, right := t.node(lvl, pos&^1), t.node(lvl, pos|1)
		parent := HashPair(left, right)
		pos >>= 1
		if pos < len(t.levels[lvl+1]) {
			t.levels[lvl+1][pos] = parent
		} else {
			t.levels[lvl+1] = append(t.levels[lvl+1], parent)
		}
	}
	return uint32(idx), nil
}

func (t *Tree) node(lvl, pos int) []byte {
	if pos < len(t.levels[lvl]) {
		return t.levels[lvl][pos]
	}
	return t.zeros[lvl]
}

func (t *Tree) Root() []byte {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.node(t.depth, 0)
}

func (t *Tree) Leaf(index uint32) ([]byte, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if int(index) >= len(t.levels[0]) {
		return nil, false
	}
	return t.levels[0][index], true
}

// Proof returns the membership proof of the leaf at index against the
// current root.
func (t *Tree) Proof(index uint32) (*Proof, error) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	if int(index) >= len(t.levels[0]) {
		return nil, fmt.Errorf("leaf index %d out of range (%d leaves)", index, len(t.levels[0]))
	}
	p := &Proof{
		Root:         utils.Hex(t.node(t.depth, 0)),
		PathElements: make([]string, t.depth),
		PathIndices:  make([]int, t.depth),
	}
	pos := int(index)
	for lvl := 0; lvl < t.depth; lvl++ {
		p.PathElements[lvl] = utils.Hex(t.node(lvl, pos^1))
		p.PathIndices[lvl] = pos & 1
		pos >>= 1
	}
	return p, nil
}
