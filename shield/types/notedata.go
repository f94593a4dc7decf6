package types

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/kysee/cloak/shield/crypto"
)

// NoteData is the plaintext of an encrypted note. Field order matches the
// web client so either side can decrypt the other's notes.
type NoteData struct {
	Amount     uint64 `json:"amount"`
	R          string `json:"r"`
	SkSpend    string `json:"sk_spend"`
	Commitment string `json:"commitment"`
}

// Note turns recovered data into a generated note on network.
func (d *NoteData) Note(network Network, timestamp int64) (*Note, error) {
	n := &Note{
		Version:    NoteVersion,
		Amount:     d.Amount,
		Commitment: d.Commitment,
		SkSpend:    d.SkSpend,
		R:          d.R,
		Timestamp:  timestamp,
		Network:    network,
		Status:     StatusGenerated,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func EncryptNoteData(data *NoteData, recipientPvk [32]byte) (*crypto.EncryptedNote, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return crypto.EncryptNote(plaintext, recipientPvk)
}

// TryDecryptNoteData opens enc and checks that the payload's commitment
// re-derives from its own fields.
func TryDecryptNoteData(enc *crypto.EncryptedNote, vk *crypto.ViewKey) (*NoteData, bool) {
	plaintext, ok := crypto.TryDecryptNote(enc, vk)
	if !ok {
		return nil, false
	}
	data := &NoteData{}
	if err := json.Unmarshal(plaintext, data); err != nil {
		return nil, false
	}
	n := &Note{Amount: data.Amount, Commitment: data.Commitment, SkSpend: data.SkSpend, R: data.R}
	if err := n.Validate(); err != nil {
		return nil, false
	}
	data.Commitment, data.SkSpend, data.R = n.Commitment, n.SkSpend, n.R
	return data, true
}

// ScanNotes returns the notes in encs addressed to vk. Everything else is
// skipped without distinguishing foreign notes from malformed ones.
func ScanNotes(encs []*crypto.EncryptedNote, vk *crypto.ViewKey) []*NoteData {
	var found []*NoteData
	for _, enc := range encs {
		if data, ok := TryDecryptNoteData(enc, vk); ok {
			found = append(found, data)
		}
	}
	return found
}

// ScanEncodedNotes is ScanNotes over the indexer's base64(JSON) outputs.
func ScanEncodedNotes(outputs []string, vk *crypto.ViewKey) []*NoteData {
	var found []*NoteData
	for _, out := range outputs {
		enc, err := DecodeEncryptedNote(out)
		if err != nil {
			continue
		}
		if data, ok := TryDecryptNoteData(enc, vk); ok {
			found = append(found, data)
		}
	}
	return found
}

func EncodeEncryptedNote(enc *crypto.EncryptedNote) (string, error) {
	bz, err := json.Marshal(enc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bz), nil
}

func DecodeEncryptedNote(s string) (*crypto.EncryptedNote, error) {
	bz, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, NewError(KindMalformedInput, "invalid encrypted note encoding", err)
	}
	enc := &crypto.EncryptedNote{}
	if err := json.Unmarshal(bz, enc); err != nil {
		return nil, NewError(KindMalformedInput, "invalid encrypted note json", err)
	}
	if _, err := hex.DecodeString(enc.EphemeralPK); err != nil || len(enc.EphemeralPK) != 2*crypto.KeySize {
		return nil, Malformed("invalid ephemeral_pk")
	}
	return enc, nil
}
