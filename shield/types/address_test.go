package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicKeyCodec(t *testing.T) {
	var pk PublicKey
	copy(pk[:], RandBytes(PublicKeySize))

	addr := pk.String()
	parsed, err := ParsePublicKey(addr)
	require.NoError(t, err)
	require.Equal(t, pk, parsed)

	// system program
	system, err := ParsePublicKey(strings.Repeat("1", 32))
	require.NoError(t, err)
	require.True(t, system.IsZero())

	wsol := MustPublicKey("So11111111111111111111111111111111111111112")
	require.Equal(t, "So11111111111111111111111111111111111111112", wsol.String())

	_, err = ParsePublicKey("abc")
	require.ErrorIs(t, err, ErrMalformedInput)
	_, err = ParsePublicKey("0OIl")
	require.Error(t, err)
}

func TestPublicKeyJSON(t *testing.T) {
	var pk PublicKey
	copy(pk[:], RandBytes(PublicKeySize))

	bz, err := json.Marshal(struct {
		Recipient PublicKey `json:"recipient"`
	}{pk})
	require.NoError(t, err)
	require.Contains(t, string(bz), pk.String())

	var out struct {
		Recipient PublicKey `json:"recipient"`
	}
	require.NoError(t, json.Unmarshal(bz, &out))
	require.Equal(t, pk, out.Recipient)
}
