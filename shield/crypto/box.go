package crypto

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const NonceSize = 24

// EncryptedNote is the wire form of an encrypted note. Every field is hex.
type EncryptedNote struct {
	EphemeralPK string `json:"ephemeral_pk"`
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce"`
}

// EncryptNote seals plaintext to the holder of recipientPvk.
// The shared key is X25519 followed by HSalsa20, the same construction as
// tweetnacl's box.before, so notes decrypt in both clients.
func EncryptNote(plaintext []byte, recipientPvk [KeySize]byte) (*EncryptedNote, error) {
	ephPub, ephSec, err := box.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer zero(ephSec[:])

	var nonce [NonceSize]byte
	if _, err := crand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	var shared [KeySize]byte
	box.Precompute(&shared, &recipientPvk, ephSec)
	defer zero(shared[:])

	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &shared)
	return &EncryptedNote{
		EphemeralPK: hex.EncodeToString(ephPub[:]),
		Ciphertext:  hex.EncodeToString(ciphertext),
		Nonce:       hex.EncodeToString(nonce[:]),
	}, nil
}

// TryDecryptNote opens enc with the view key. It reports false for notes
// addressed to someone else as well as for malformed input.
func TryDecryptNote(enc *EncryptedNote, vk *ViewKey) ([]byte, bool) {
	if enc == nil || vk == nil {
		return nil, false
	}
	ephPub, ok := decodeFixed(enc.EphemeralPK, KeySize)
	if !ok {
		return nil, false
	}
	nonceBz, ok := decodeFixed(enc.Nonce, NonceSize)
	if !ok {
		return nil, false
	}
	ciphertext, err := hex.DecodeString(enc.Ciphertext)
	if err != nil || len(ciphertext) < secretbox.Overhead {
		return nil, false
	}

	var (
		peer   [KeySize]byte
		nonce  [NonceSize]byte
		shared [KeySize]byte
	)
	copy(peer[:], ephPub)
	copy(nonce[:], nonceBz)
	box.Precompute(&shared, &peer, &vk.Secret)
	defer zero(shared[:])

	return secretbox.Open(nil, ciphertext, &nonce, &shared)
}

func decodeFixed(s string, n int) ([]byte, bool) {
	if len(s) != 2*n {
		return nil, false
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return bz, true
}

func zero(bz []byte) {
	for i := range bz {
		bz[i] = 0
	}
}
