package types

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures by what the caller can safely do next.
type Kind string

const (
	KindMalformedInput     Kind = "malformed_input"
	KindProofInconsistency Kind = "proof_inconsistency"
	KindExternalService    Kind = "external_service"
	KindConservation       Kind = "conservation"
	KindRelayFailed        Kind = "relay_failed"
	KindTimeout            Kind = "timeout"
	KindCanceled           Kind = "canceled"
	KindInFlight           Kind = "in_flight"
	KindNoteState          Kind = "note_state"
)

// Error carries the step and external call a failure happened in.
type Error struct {
	Kind    Kind
	Step    string // flow step, e.g. "generating_proof"
	Call    string // external call, e.g. "relay.status"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Step != "" {
		msg += " at " + e.Step
	}
	if e.Call != "" {
		msg += " (" + e.Call + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Step == "" && t.Call == "" && t.Message == "" && t.Err == nil
}

var (
	ErrMalformedInput     = &Error{Kind: KindMalformedInput}
	ErrProofInconsistency = &Error{Kind: KindProofInconsistency}
	ErrExternalService    = &Error{Kind: KindExternalService}
	ErrConservation       = &Error{Kind: KindConservation}
	ErrRelayFailed        = &Error{Kind: KindRelayFailed}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrCanceled           = &Error{Kind: KindCanceled}
	ErrInFlight           = &Error{Kind: KindInFlight}
	ErrNoteState          = &Error{Kind: KindNoteState}
)

func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedInput, Message: fmt.Sprintf(format, args...)}
}

// WithStep returns err annotated with step. Context errors become canceled
// errors and any other non-*Error err becomes an external_service error.
func WithStep(err error, step, call string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Step == "" {
			cp.Step = step
		}
		if cp.Call == "" {
			cp.Call = call
		}
		return &cp
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Step: step, Call: call, Err: err}
	}
	return &Error{Kind: KindExternalService, Step: step, Call: call, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
