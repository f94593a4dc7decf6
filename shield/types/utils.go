package types

import crand "crypto/rand"

func RandBytes(n int) []byte {
	rbz := make([]byte, n)
	_, _ = crand.Read(rbz)
	return rbz
}

func RandBytes32() [32]byte {
	var ret [32]byte
	copy(ret[:], RandBytes(32))
	return ret
}
