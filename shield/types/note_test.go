package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/utils"
	"github.com/stretchr/testify/require"
)

func newSpendKey(t *testing.T) *crypto.SpendKey {
	ks, err := crypto.NewKeySet()
	require.NoError(t, err)
	return &ks.Spend
}

func TestCommit_Layout(t *testing.T) {
	r := RandBytes32()
	pk := RandBytes32()

	input := append(utils.LE64(1_000_000_000), r[:]...)
	input = append(input, pk[:]...)
	require.Len(t, input, 72)
	require.Equal(t, utils.DefaultHashSum32(input), Commit(1_000_000_000, r, pk))
}

func TestCommit_NoCollision(t *testing.T) {
	seen := make(map[[32]byte]struct{})
	for i := 0; i < 10_000; i++ {
		amount := uint64(i + 1)
		r := RandBytes32()
		pk := RandBytes32()

		cm := Commit(amount, r, pk)
		_, dup := seen[cm]
		require.False(t, dup)
		seen[cm] = struct{}{}

		r2 := r
		r2[i%32] ^= 1
		pk2 := pk
		pk2[(i+7)%32] ^= 0x80
		require.NotEqual(t, cm, Commit(amount+1, r, pk))
		require.NotEqual(t, cm, Commit(amount, r2, pk))
		require.NotEqual(t, cm, Commit(amount, r, pk2))
	}
}

func TestNullifier(t *testing.T) {
	sk := RandBytes32()
	nf := Nullifier(sk, 5)
	require.Equal(t, nf, Nullifier(sk, 5))
	require.Equal(t, utils.DefaultHashSum32(sk[:], []byte{5, 0, 0, 0}), nf)
	require.NotEqual(t, nf, Nullifier(sk, 6))

	other := sk
	other[0] ^= 1
	require.NotEqual(t, nf, Nullifier(other, 5))
}

func TestNewNote(t *testing.T) {
	sk := newSpendKey(t)
	n, err := NewNote(1_000_000_000, sk, Devnet)
	require.NoError(t, err)
	require.Equal(t, NoteVersion, n.Version)
	require.Equal(t, StatusGenerated, n.Status)
	require.False(t, n.IsSpendable())
	require.NoError(t, n.Validate())

	cm, err := n.RecomputeCommitment()
	require.NoError(t, err)
	require.Equal(t, n.Commitment, hex.EncodeToString(cm[:]))

	n2, err := NewNote(1_000_000_000, sk, Devnet)
	require.NoError(t, err)
	require.NotEqual(t, n.R, n2.R)
	require.NotEqual(t, n.Commitment, n2.Commitment)

	_, err = n.ComputeNullifier()
	require.ErrorIs(t, err, ErrNoteState)

	idx := uint32(3)
	n.LeafIndex = &idx
	nf, err := n.ComputeNullifier()
	require.NoError(t, err)
	require.Equal(t, Nullifier(sk.Secret, 3), nf)

	_, err = NewNote(0, sk, Devnet)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestParseNote(t *testing.T) {
	sk := newSpendKey(t)
	n, err := NewNote(42_000, sk, Localnet)
	require.NoError(t, err)
	idx := uint32(9)
	slot := uint64(1234)
	n.LeafIndex = &idx
	n.DepositSlot = &slot
	n.Root = hex.EncodeToString(make([]byte, 32))
	n.MerkleProof = &MerklePath{
		PathElements: []string{strings.Repeat("AB", 32)},
		PathIndices:  []int{1},
	}
	n.Status = ""

	bz, err := json.Marshal(n)
	require.NoError(t, err)

	parsed, err := ParseNote(bz)
	require.NoError(t, err)
	require.Equal(t, StatusDeposited, parsed.Status)
	require.Equal(t, strings.Repeat("ab", 32), parsed.MerkleProof.PathElements[0])
	require.Equal(t, slot, *parsed.DepositSlot)
	require.True(t, parsed.IsSpendable())

	// upper-case hex is accepted and normalized
	upper := n.Clone()
	upper.Commitment = strings.ToUpper(upper.Commitment)
	bz, err = json.Marshal(upper)
	require.NoError(t, err)
	parsed, err = ParseNote(bz)
	require.NoError(t, err)
	require.Equal(t, n.Commitment, parsed.Commitment)
}

func TestParseNote_Rejects(t *testing.T) {
	sk := newSpendKey(t)
	base, err := NewNote(42_000, sk, Localnet)
	require.NoError(t, err)

	cases := map[string]func(n *Note){
		"zero amount":       func(n *Note) { n.Amount = 0 },
		"edited amount":     func(n *Note) { n.Amount++ },
		"short commitment":  func(n *Note) { n.Commitment = n.Commitment[:62] },
		"prefixed r":        func(n *Note) { n.R = "0x" + n.R[2:] },
		"foreign sk_spend":  func(n *Note) { n.SkSpend = strings.Repeat("11", 32) },
		"bad root":          func(n *Note) { n.Root = "00" },
		"bad path index":    func(n *Note) { n.MerkleProof = &MerklePath{PathElements: []string{n.Commitment}, PathIndices: []int{2}} },
		"uneven path":       func(n *Note) { n.MerkleProof = &MerklePath{PathElements: []string{n.Commitment}} },
		"unknown status":    func(n *Note) { n.Status = "burnt" },
		"deposited no leaf": func(n *Note) { n.Status = StatusDeposited },
	}
	for name, mutate := range cases {
		n := base.Clone()
		mutate(n)
		bz, err := json.Marshal(n)
		require.NoError(t, err)
		_, err = ParseNote(bz)
		require.ErrorIs(t, err, ErrMalformedInput, name)
	}

	_, err = ParseNote([]byte("{"))
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestStatus_Monotonic(t *testing.T) {
	require.True(t, StatusGenerated.CanAdvanceTo(StatusDeposited))
	require.True(t, StatusDeposited.CanAdvanceTo(StatusSpent))
	require.True(t, StatusDeposited.CanAdvanceTo(StatusDeposited))
	require.False(t, StatusSpent.CanAdvanceTo(StatusDeposited))
	require.False(t, StatusDeposited.CanAdvanceTo(StatusGenerated))
	require.False(t, StatusGenerated.CanAdvanceTo("burnt"))
}
