package solana

import (
	"encoding/json"
	"fmt"
)

// ProgramError is a custom error code returned by the shield pool program.
type ProgramError uint32

var programErrors = map[ProgramError]string{
	// roots
	0x1000: "invalid merkle root",
	0x1001: "root not found in the roots ring",
	0x1002: "roots ring is full",

	// proof verification
	0x1010: "zero-knowledge proof is invalid",
	0x1011: "invalid proof size (expected 260 bytes)",
	0x1012: "invalid public inputs",
	0x1013: "verification key mismatch",

	// nullifiers
	0x1020: "double spend detected, this note has already been spent",
	0x1021: "nullifier shard is full",
	0x1022: "invalid nullifier",

	// transaction validation
	0x1030: "output addresses or amounts don't match the proof",
	0x1031: "amount conservation failed, outputs + fee must equal the input amount",
	0x1032: "invalid outputs hash",
	0x1033: "invalid amount (must be greater than zero)",
	0x1034: "invalid recipient address",
	0x1035: "commitment already exists in the tree",
	0x1036: "commitment log is full",

	0x1040: "math overflow",
	0x1041: "division by zero",

	// accounts
	0x1050: "account validation failed",
	0x1051: "pool account owner mismatch",
	0x1052: "treasury account owner mismatch",
	0x1053: "roots ring account owner mismatch",
	0x1054: "nullifier shard account owner mismatch",
	0x1055: "pool account is not writable",
	0x1056: "treasury account is not writable",
	0x1057: "recipient account is not writable",
	0x1058: "insufficient lamports in pool or account",
	0x1059: "invalid account owner",
	0x105a: "invalid account size",
	0x105b: "commitments account is not writable",
	0x105c: "invalid admin authority",

	// instructions
	0x1060: "invalid instruction data length",
	0x1061: "invalid instruction data format",
	0x1062: "missing required accounts",
	0x1063: "invalid instruction tag",
	0x1064: "invalid miner account",
	0x1065: "invalid claim account",
	0x1066: "failed to consume claim",

	// groth16 verifier
	0x1070: "invalid G1 point length",
	0x1071: "invalid G2 point length",
	0x1072: "invalid public inputs length",
	0x1073: "public input exceeds field size",
	0x1074: "G1 multiplication failed during proof preparation",
	0x1075: "G1 addition failed during proof preparation",
	0x1076: "proof verification failed",
}

// Known reports whether e is one of the pool program's codes.
func (e ProgramError) Known() bool {
	_, ok := programErrors[e]
	return ok
}

func (e ProgramError) Error() string {
	if msg, ok := programErrors[e]; ok {
		return msg
	}
	return fmt.Sprintf("unknown program error %d (0x%x)", uint32(e), uint32(e))
}

// TransactionError is the decoded "err" of a failed transaction status.
type TransactionError struct {
	// Instruction is the failing instruction index, -1 when the error is not
	// an instruction error.
	Instruction int
	// Custom is set when the program returned a custom code.
	Custom *ProgramError
	// Reason is the runtime's error name for non-custom failures.
	Reason string
	Raw    json.RawMessage
}

// ParseTransactionError decodes the err field of a signature status. It
// understands {"InstructionError":[idx,{"Custom":code}]} and
// {"InstructionError":[idx,"Name"]}; anything else is kept raw.
func ParseTransactionError(raw json.RawMessage) *TransactionError {
	te := &TransactionError{Instruction: -1, Raw: raw}

	var wrapped struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.InstructionError) != 2 {
		return te
	}
	var idx int
	if err := json.Unmarshal(wrapped.InstructionError[0], &idx); err != nil {
		return te
	}

	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	var name string
	switch {
	case json.Unmarshal(wrapped.InstructionError[1], &custom) == nil && custom.Custom != nil:
		code := ProgramError(*custom.Custom)
		te.Custom = &code
	case json.Unmarshal(wrapped.InstructionError[1], &name) == nil:
		te.Reason = name
	default:
		te.Reason = string(wrapped.InstructionError[1])
	}
	te.Instruction = idx
	return te
}

func (e *TransactionError) Error() string {
	switch {
	case e.Custom != nil && e.Custom.Known():
		return fmt.Sprintf("transaction failed: %s (code 0x%x, instruction %d)", e.Custom.Error(), uint32(*e.Custom), e.Instruction)
	case e.Custom != nil:
		return fmt.Sprintf("transaction failed with error code %d (0x%x) at instruction %d", uint32(*e.Custom), uint32(*e.Custom), e.Instruction)
	case e.Instruction >= 0:
		return fmt.Sprintf("transaction failed at instruction %d: %s", e.Instruction, e.Reason)
	default:
		return "transaction failed: " + string(e.Raw)
	}
}
