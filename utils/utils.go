package utils

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"lukechampine.com/blake3"
)

const HashSize = 32

func DefaultHasher() hash.Hash {
	return blake3.New(HashSize, nil)
}

// DefaultHashSum returns BLAKE3-256 over the concatenation of ins.
// Every commitment, nullifier, key derivation and Merkle node goes through here.
func DefaultHashSum(ins ...[]byte) []byte {
	hasher := DefaultHasher()
	for _, in := range ins {
		if _, err := hasher.Write(in); err != nil {
			panic(err)
		}
	}
	return hasher.Sum(nil)
}

// DefaultHashSum32 is DefaultHashSum with a fixed-size result.
func DefaultHashSum32(ins ...[]byte) [HashSize]byte {
	var ret [HashSize]byte
	copy(ret[:], DefaultHashSum(ins...))
	return ret
}

func LE64(v uint64) []byte {
	bz := make([]byte, 8)
	binary.LittleEndian.PutUint64(bz, v)
	return bz
}

func LE32(v uint32) []byte {
	bz := make([]byte, 4)
	binary.LittleEndian.PutUint32(bz, v)
	return bz
}

func IsHex32(s string) bool {
	if len(s) != 2*HashSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// DecodeHex32 decodes exactly 64 hex characters. A 0x prefix is not accepted.
func DecodeHex32(s string) ([HashSize]byte, error) {
	var ret [HashSize]byte
	if !IsHex32(s) {
		return ret, fmt.Errorf("expected 64 hex characters, got %q", abbrev(s))
	}
	if _, err := hex.Decode(ret[:], []byte(s)); err != nil {
		return ret, err
	}
	return ret, nil
}

func Hex(bz []byte) string {
	return hex.EncodeToString(bz)
}

// Short abbreviates a hex identifier for logs.
func Short(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + ".." + s[len(s)-8:]
}

func abbrev(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
