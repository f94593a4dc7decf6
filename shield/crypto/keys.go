package crypto

import (
	crand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kysee/cloak/utils"
	"golang.org/x/crypto/curve25519"
)

const (
	KeySize = 32

	spendKeyDomain  = "cloak_spend_key"
	viewKeyDomain   = "cloak_view_key_secret"
	keyBackupFormat = "2.0"
)

var ErrSeedLength = fmt.Errorf("master seed must be %d bytes", KeySize)

// MasterSeed is the only secret a user has to back up.
type MasterSeed [KeySize]byte

type SpendKey struct {
	Secret [KeySize]byte // sk_spend
	Public [KeySize]byte // pk_spend = Hash(sk_spend)
}

// ViewKey discovers and decrypts notes. It carries no spend authority.
type ViewKey struct {
	Secret [KeySize]byte // clamped X25519 scalar
	Public [KeySize]byte // pvk
}

type KeySet struct {
	Seed  MasterSeed
	Spend SpendKey
	View  ViewKey
}

func GenerateMasterSeed() (MasterSeed, error) {
	var seed MasterSeed
	if _, err := crand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("failed to read random seed: %w", err)
	}
	return seed, nil
}

func MasterSeedFromBytes(bz []byte) (MasterSeed, error) {
	var seed MasterSeed
	if len(bz) != KeySize {
		return seed, fmt.Errorf("%w: got %d", ErrSeedLength, len(bz))
	}
	copy(seed[:], bz)
	return seed, nil
}

// DeriveSpendKey computes sk_spend = Hash(seed || "cloak_spend_key") and
// pk_spend = Hash(sk_spend).
func DeriveSpendKey(seed MasterSeed) SpendKey {
	var sk SpendKey
	sk.Secret = utils.DefaultHashSum32(seed[:], []byte(spendKeyDomain))
	sk.Public = utils.DefaultHashSum32(sk.Secret[:])
	return sk
}

// PublicSpendKey returns Hash(sk_spend).
func PublicSpendKey(skSpend [KeySize]byte) [KeySize]byte {
	return utils.DefaultHashSum32(skSpend[:])
}

// DeriveViewKey computes the X25519 view keypair from sk_spend.
func DeriveViewKey(skSpend [KeySize]byte) ViewKey {
	var vk ViewKey
	vk.Secret = utils.DefaultHashSum32(skSpend[:], []byte(viewKeyDomain))
	clampScalar(&vk.Secret)

	pub, err := curve25519.X25519(vk.Secret[:], curve25519.Basepoint)
	if err != nil {
		// the base point never yields the all-zero output
		panic(err)
	}
	copy(vk.Public[:], pub)
	return vk
}

func clampScalar(s *[KeySize]byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}

func DeriveKeys(seed MasterSeed) *KeySet {
	spend := DeriveSpendKey(seed)
	return &KeySet{
		Seed:  seed,
		Spend: spend,
		View:  DeriveViewKey(spend.Secret),
	}
}

func NewKeySet() (*KeySet, error) {
	seed, err := GenerateMasterSeed()
	if err != nil {
		return nil, err
	}
	return DeriveKeys(seed), nil
}

//
// Key backup

type keyBackup struct {
	Version    string `json:"version"`
	MasterSeed string `json:"master_seed"`
	SkSpend    string `json:"sk_spend,omitempty"`
	PkSpend    string `json:"pk_spend,omitempty"`
	VkSecret   string `json:"vk_secret,omitempty"`
	Pvk        string `json:"pvk,omitempty"`
}

// ExportKeys serializes the key set for backup. The output contains secrets.
func ExportKeys(ks *KeySet) ([]byte, error) {
	return json.MarshalIndent(&keyBackup{
		Version:    keyBackupFormat,
		MasterSeed: hex.EncodeToString(ks.Seed[:]),
		SkSpend:    hex.EncodeToString(ks.Spend.Secret[:]),
		PkSpend:    hex.EncodeToString(ks.Spend.Public[:]),
		VkSecret:   hex.EncodeToString(ks.View.Secret[:]),
		Pvk:        hex.EncodeToString(ks.View.Public[:]),
	}, "", "  ")
}

// ImportKeys re-derives every key from master_seed. Derived keys present in
// the backup must agree with the re-derivation.
func ImportKeys(bz []byte) (*KeySet, error) {
	var backup keyBackup
	if err := json.Unmarshal(bz, &backup); err != nil {
		return nil, fmt.Errorf("invalid key backup: %w", err)
	}
	if backup.MasterSeed == "" {
		return nil, errors.New("invalid key backup: missing master_seed")
	}
	raw, err := utils.DecodeHex32(backup.MasterSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid key backup: master_seed: %w", err)
	}
	ks := DeriveKeys(MasterSeed(raw))

	checks := []struct {
		name string
		got  string
		want []byte
	}{
		{"sk_spend", backup.SkSpend, ks.Spend.Secret[:]},
		{"pk_spend", backup.PkSpend, ks.Spend.Public[:]},
		{"vk_secret", backup.VkSecret, ks.View.Secret[:]},
		{"pvk", backup.Pvk, ks.View.Public[:]},
	}
	for _, c := range checks {
		if c.got == "" {
			continue
		}
		stored, err := utils.DecodeHex32(c.got)
		if err != nil {
			return nil, fmt.Errorf("invalid key backup: %s: %w", c.name, err)
		}
		if subtle.ConstantTimeCompare(stored[:], c.want) != 1 {
			return nil, fmt.Errorf("invalid key backup: %s does not match master_seed", c.name)
		}
	}
	return ks, nil
}
