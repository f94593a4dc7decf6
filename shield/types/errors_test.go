package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_KindMatching(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindRelayFailed, Step: "queued", Message: "x"})
	require.ErrorIs(t, err, ErrRelayFailed)
	require.NotErrorIs(t, err, ErrTimeout)
	require.Equal(t, KindRelayFailed, KindOf(err))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.Contains(t, err.Error(), "relay_failed at queued: x")
}

func TestWithStep(t *testing.T) {
	require.NoError(t, WithStep(nil, "depositing", "chain.submit"))

	err := WithStep(errors.New("connection refused"), "depositing", "chain.submit")
	require.Equal(t, KindExternalService, KindOf(err))
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "depositing", e.Step)
	require.Equal(t, "chain.submit", e.Call)

	err = WithStep(context.Canceled, "queued", "relay.status")
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)

	// existing annotations are kept
	inner := &Error{Kind: KindTimeout, Step: "being_mined"}
	err = WithStep(inner, "queued", "relay.status")
	require.ErrorAs(t, err, &e)
	require.Equal(t, "being_mined", e.Step)
	require.Equal(t, "relay.status", e.Call)
}
