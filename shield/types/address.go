package types

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const PublicKeySize = 32

// PublicKey is a Solana account address.
type PublicKey [PublicKeySize]byte

func ParsePublicKey(addr string) (PublicKey, error) {
	var pk PublicKey
	bz := base58.Decode(addr)
	if len(bz) != PublicKeySize {
		return pk, Malformed("wrong public key: %q decodes to %d bytes", addr, len(bz))
	}
	copy(pk[:], bz)
	return pk, nil
}

func MustPublicKey(addr string) PublicKey {
	pk, err := ParsePublicKey(addr)
	if err != nil {
		panic(err)
	}
	return pk
}

func PublicKeyFromBytes(bz []byte) (PublicKey, error) {
	var pk PublicKey
	if len(bz) != PublicKeySize {
		return pk, fmt.Errorf("wrong public key length: expected(%d), got(%d)", PublicKeySize, len(bz))
	}
	copy(pk[:], bz)
	return pk, nil
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
