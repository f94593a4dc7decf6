package solana

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kysee/cloak/utils"
)

// DepositDiscriminant selects the deposit instruction of the pool program.
const DepositDiscriminant byte = 0

// Confirmation levels reported by getSignatureStatuses.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// DepositInstructionData is the instruction payload of a pool deposit:
// discriminant || LE64(amount) || commitment.
func DepositInstructionData(amount uint64, commitment [32]byte) []byte {
	data := make([]byte, 0, 1+8+32)
	data = append(data, DepositDiscriminant)
	data = append(data, utils.LE64(amount)...)
	return append(data, commitment[:]...)
}

// ParseDepositInstruction is the inverse of DepositInstructionData.
func ParseDepositInstruction(data []byte) (amount uint64, commitment [32]byte, err error) {
	if len(data) != 1+8+32 {
		return 0, commitment, fmt.Errorf("deposit instruction: expected 41 bytes, got %d", len(data))
	}
	if data[0] != DepositDiscriminant {
		return 0, commitment, fmt.Errorf("deposit instruction: unexpected discriminant %d", data[0])
	}
	amount = binary.LittleEndian.Uint64(data[1:9])
	copy(commitment[:], data[9:])
	return amount, commitment, nil
}

type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// Confirmed reports whether the transaction reached at least "confirmed".
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

// TxError decodes the transaction error, or returns nil if the transaction
// did not fail.
func (s *SignatureStatus) TxError() *TransactionError {
	if !s.Failed() {
		return nil
	}
	return ParseTransactionError(s.Err)
}

func (s *SignatureStatus) String() string {
	if s == nil {
		return "unknown"
	}
	if s.Failed() {
		return fmt.Sprintf("failed at slot %d: %s", s.Slot, s.TxError().Error())
	}
	return fmt.Sprintf("%s at slot %d", s.ConfirmationStatus, s.Slot)
}

// Submitter signs and sends the deposit transaction. It is supplied by the
// wallet layer that holds the user's signing key.
type Submitter interface {
	SubmitDeposit(ctx context.Context, amount uint64, commitment [32]byte) (signature string, err error)
}

// SubmitFunc adapts a function to Submitter. Implementations put
// DepositInstructionData(amount, commitment) in the pool program instruction
// of the transaction they sign.
type SubmitFunc func(ctx context.Context, amount uint64, commitment [32]byte) (string, error)

func (f SubmitFunc) SubmitDeposit(ctx context.Context, amount uint64, commitment [32]byte) (string, error) {
	return f(ctx, amount, commitment)
}

// Confirmer looks up a submitted transaction. A nil status with a nil error
// means the cluster has not seen the signature yet.
type Confirmer interface {
	SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
}

type Chain interface {
	Submitter
	Confirmer
}

type chain struct {
	Submitter
	Confirmer
}

// Compose joins a submitter and a confirmer into a Chain.
func Compose(s Submitter, c Confirmer) Chain {
	return &chain{Submitter: s, Confirmer: c}
}

// TransactionSlot forwards to the confirmer when it can look slots up.
func (c *chain) TransactionSlot(ctx context.Context, signature string) (uint64, bool, error) {
	if sl, ok := c.Confirmer.(interface {
		TransactionSlot(ctx context.Context, signature string) (uint64, bool, error)
	}); ok {
		return sl.TransactionSlot(ctx, signature)
	}
	return 0, false, nil
}
