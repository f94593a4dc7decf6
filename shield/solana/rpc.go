package solana

import (
	"context"
	"time"

	"github.com/kysee/cloak/shield/rpc"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 30 * time.Second

// RPC queries a Solana JSON-RPC endpoint.
type RPC struct {
	client *rpc.Client
}

var _ Confirmer = (*RPC)(nil)

func NewRPC(url string, logger zerolog.Logger) *RPC {
	return &RPC{client: rpc.NewClient("solana", url, DefaultTimeout, logger)}
}

type statusesResult struct {
	Value []*SignatureStatus `json:"value"`
}

func (r *RPC) SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	var res statusesResult
	params := []any{[]string{signature}, map[string]any{"searchTransactionHistory": true}}
	if err := r.client.Call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// TransactionSlot returns the slot a confirmed transaction landed in, or
// false if the node does not return it yet.
func (r *RPC) TransactionSlot(ctx context.Context, signature string) (uint64, bool, error) {
	var res *struct {
		Slot uint64 `json:"slot"`
	}
	params := []any{signature, map[string]any{
		"commitment":                     CommitmentConfirmed,
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := r.client.Call(ctx, "getTransaction", params, &res); err != nil {
		return 0, false, err
	}
	if res == nil {
		return 0, false, nil
	}
	return res.Slot, true, nil
}

// Health returns nil when the node reports itself healthy.
func (r *RPC) Health(ctx context.Context) error {
	var s string
	return r.client.Call(ctx, "getHealth", nil, &s)
}
