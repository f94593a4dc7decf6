package types

import "fmt"

// Mode selects what a spend pays into.
type Mode string

const (
	ModeSend    Mode = "send"
	ModeSwap    Mode = "swap"
	ModeStake   Mode = "stake"
	ModeUnstake Mode = "unstake"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSend, ModeSwap, ModeStake, ModeUnstake:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
