package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/utils"
)

const NoteVersion = "2.0"

// Commit computes Hash(LE64(amount) || r || pk_spend).
func Commit(amount uint64, r, pkSpend [32]byte) [32]byte {
	return utils.DefaultHashSum32(utils.LE64(amount), r[:], pkSpend[:])
}

// Nullifier computes Hash(sk_spend || LE32(leafIndex)).
func Nullifier(skSpend [32]byte, leafIndex uint32) [32]byte {
	return utils.DefaultHashSum32(skSpend[:], utils.LE32(leafIndex))
}

type Status string

const (
	StatusGenerated Status = "generated"
	StatusDeposited Status = "deposited"
	StatusSpent     Status = "spent"
)

func (s Status) Rank() int {
	switch s {
	case StatusGenerated:
		return 1
	case StatusDeposited:
		return 2
	case StatusSpent:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	return s.Rank() > 0
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.Rank() >= s.Rank()
}

// MerklePath is the sibling path pinned to a note at deposit time.
type MerklePath struct {
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

func (p *MerklePath) Clone() *MerklePath {
	if p == nil {
		return nil
	}
	return &MerklePath{
		PathElements: append([]string(nil), p.PathElements...),
		PathIndices:  append([]int(nil), p.PathIndices...),
	}
}

// Note is the portable, persisted form of a shielded note. Byte fields are
// lowercase hex.
type Note struct {
	Version          string      `json:"version"`
	Amount           uint64      `json:"amount"`
	Commitment       string      `json:"commitment"`
	SkSpend          string      `json:"sk_spend"`
	R                string      `json:"r"`
	DepositSignature string      `json:"depositSignature,omitempty"`
	DepositSlot      *uint64     `json:"depositSlot,omitempty"`
	LeafIndex        *uint32     `json:"leafIndex,omitempty"`
	Root             string      `json:"root,omitempty"`
	MerkleProof      *MerklePath `json:"merkleProof,omitempty"`
	Timestamp        int64       `json:"timestamp"`
	Network          Network     `json:"network"`
	Status           Status      `json:"status,omitempty"`
}

// NewNote creates a fresh note owned by sk. r is drawn from crypto/rand.
func NewNote(amount uint64, sk *crypto.SpendKey, network Network) (*Note, error) {
	if amount == 0 {
		return nil, Malformed("amount must be greater than zero")
	}
	r := RandBytes32()
	cm := Commit(amount, r, sk.Public)
	return &Note{
		Version:    NoteVersion,
		Amount:     amount,
		Commitment: hex.EncodeToString(cm[:]),
		SkSpend:    hex.EncodeToString(sk.Secret[:]),
		R:          hex.EncodeToString(r[:]),
		Timestamp:  time.Now().UnixMilli(),
		Network:    network,
		Status:     StatusGenerated,
	}, nil
}

// ParseNote decodes and validates a note from its JSON form.
// Notes written without a status get one inferred from their leaf index.
func ParseNote(bz []byte) (*Note, error) {
	note := &Note{}
	if err := json.Unmarshal(bz, note); err != nil {
		return nil, NewError(KindMalformedInput, "invalid note json", err)
	}
	if note.Status == "" {
		if note.LeafIndex != nil {
			note.Status = StatusDeposited
		} else {
			note.Status = StatusGenerated
		}
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}
	return note, nil
}

func (n *Note) Validate() error {
	if n.Amount == 0 {
		return Malformed("amount must be greater than zero")
	}
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"commitment", &n.Commitment},
		{"sk_spend", &n.SkSpend},
		{"r", &n.R},
	} {
		if !utils.IsHex32(*f.val) {
			return Malformed("invalid %s format", f.name)
		}
		*f.val = strings.ToLower(*f.val)
	}

	recomputed, err := n.RecomputeCommitment()
	if err != nil {
		return err
	}
	if hex.EncodeToString(recomputed[:]) != n.Commitment {
		return Malformed("commitment does not match amount, r and sk_spend")
	}

	if n.Root != "" {
		if !utils.IsHex32(n.Root) {
			return Malformed("invalid root format")
		}
		n.Root = strings.ToLower(n.Root)
	}
	if p := n.MerkleProof; p != nil {
		if len(p.PathElements) != len(p.PathIndices) {
			return Malformed("merkle path has %d elements but %d indices", len(p.PathElements), len(p.PathIndices))
		}
		for i, el := range p.PathElements {
			if !utils.IsHex32(el) {
				return Malformed("invalid merkle path element %d", i)
			}
			p.PathElements[i] = strings.ToLower(el)
		}
		for i, idx := range p.PathIndices {
			if idx != 0 && idx != 1 {
				return Malformed("invalid merkle path index %d: %d", i, idx)
			}
		}
	}

	if n.Status != "" && !n.Status.Valid() {
		return Malformed("unknown note status %q", n.Status)
	}
	if n.Status.Rank() >= StatusDeposited.Rank() && n.LeafIndex == nil {
		return Malformed("%s note has no leaf index", n.Status)
	}
	return nil
}

func (n *Note) RecomputeCommitment() ([32]byte, error) {
	sk, err := n.SecretKey()
	if err != nil {
		return [32]byte{}, err
	}
	r, err := utils.DecodeHex32(n.R)
	if err != nil {
		return [32]byte{}, NewError(KindMalformedInput, "invalid r", err)
	}
	return Commit(n.Amount, r, crypto.PublicSpendKey(sk)), nil
}

func (n *Note) SecretKey() ([32]byte, error) {
	sk, err := utils.DecodeHex32(n.SkSpend)
	if err != nil {
		return sk, NewError(KindMalformedInput, "invalid sk_spend", err)
	}
	return sk, nil
}

func (n *Note) CommitmentBytes() ([32]byte, error) {
	cm, err := utils.DecodeHex32(n.Commitment)
	if err != nil {
		return cm, NewError(KindMalformedInput, "invalid commitment", err)
	}
	return cm, nil
}

// ComputeNullifier derives the nullifier fresh. It is never stored.
func (n *Note) ComputeNullifier() ([32]byte, error) {
	if n.LeafIndex == nil {
		return [32]byte{}, &Error{Kind: KindNoteState, Message: "note has no leaf index"}
	}
	sk, err := n.SecretKey()
	if err != nil {
		return [32]byte{}, err
	}
	return Nullifier(sk, *n.LeafIndex), nil
}

func (n *Note) IsSpendable() bool {
	return n.Status == StatusDeposited && n.LeafIndex != nil
}

func (n *Note) Clone() *Note {
	cp := *n
	if n.DepositSlot != nil {
		slot := *n.DepositSlot
		cp.DepositSlot = &slot
	}
	if n.LeafIndex != nil {
		idx := *n.LeafIndex
		cp.LeafIndex = &idx
	}
	cp.MerkleProof = n.MerkleProof.Clone()
	return &cp
}

// Data returns the payload that gets encrypted for note recovery.
func (n *Note) Data() *NoteData {
	return &NoteData{
		Amount:     n.Amount,
		R:          n.R,
		SkSpend:    n.SkSpend,
		Commitment: n.Commitment,
	}
}
