package prover

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kysee/cloak/shield/rpc"
	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 5 * time.Minute

type Result struct {
	Proof          []byte
	PublicInputs   []byte
	GenerationTime time.Duration
}

// Generator produces a proof for a fully assembled set of inputs.
type Generator interface {
	GenerateProof(ctx context.Context, in *Inputs) (*Result, error)
}

// proveRequest carries each part as a JSON string, which is what the prove
// endpoint expects.
type proveRequest struct {
	PrivateInputs string `json:"private_inputs"`
	PublicInputs  string `json:"public_inputs"`
	Outputs       string `json:"outputs"`
	SwapParams    string `json:"swap_params,omitempty"`
	StakeParams   string `json:"stake_params,omitempty"`
}

type proveResponse struct {
	Success          bool   `json:"success"`
	Proof            string `json:"proof"`
	PublicInputs     string `json:"public_inputs"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	Error            string `json:"error"`
}

type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Generator = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// the deadline is set per request on the context
	c := rpc.NewClient("prover", baseURL, 0, logger)
	return &Client{rpc: c, timeout: timeout, logger: c.Logger()}
}

func encodeRequest(in *Inputs) (*proveRequest, error) {
	marshal := func(v any) (string, error) {
		bz, err := json.Marshal(v)
		return string(bz), err
	}
	outputs := in.Outputs
	if outputs == nil {
		outputs = []Output{}
	}

	req := &proveRequest{}
	var err error
	if req.PrivateInputs, err = marshal(in.Private); err != nil {
		return nil, err
	}
	if req.PublicInputs, err = marshal(in.Public); err != nil {
		return nil, err
	}
	if req.Outputs, err = marshal(outputs); err != nil {
		return nil, err
	}
	if in.Swap != nil {
		if req.SwapParams, err = marshal(in.Swap); err != nil {
			return nil, err
		}
	}
	if in.Stake != nil {
		if req.StakeParams, err = marshal(in.Stake); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *Client) GenerateProof(ctx context.Context, in *Inputs) (*Result, error) {
	req, err := encodeRequest(in)
	if err != nil {
		return nil, types.NewError(types.KindMalformedInput, "encode prover inputs", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	c.logger.Info().
		Uint32("leaf_index", in.Private.LeafIndex).
		Int("path_len", len(in.Private.MerklePath.PathElements)).
		Int("outputs", len(in.Outputs)).
		Msg("requesting proof")

	var resp proveResponse
	if err := c.rpc.Do(ctx, http.MethodPost, "/api/prove", req, &resp); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &types.Error{
				Kind:    types.KindExternalService,
				Call:    "prover POST /api/prove",
				Message: fmt.Sprintf("proof generation timed out after %s", c.timeout),
			}
		}
		return nil, err
	}
	if !resp.Success || resp.Proof == "" || resp.PublicInputs == "" {
		msg := resp.Error
		if msg == "" {
			msg = "proof generation failed"
		}
		return nil, &types.Error{Kind: types.KindExternalService, Call: "prover POST /api/prove", Message: msg}
	}

	proof, err := hex.DecodeString(resp.Proof)
	if err != nil {
		return nil, &types.Error{Kind: types.KindExternalService, Call: "prover POST /api/prove", Message: "invalid proof hex", Err: err}
	}
	pub, err := hex.DecodeString(resp.PublicInputs)
	if err != nil {
		return nil, &types.Error{Kind: types.KindExternalService, Call: "prover POST /api/prove", Message: "invalid public inputs hex", Err: err}
	}

	gen := time.Duration(resp.GenerationTimeMs) * time.Millisecond
	if gen == 0 {
		gen = time.Since(start)
	}
	ev := c.logger.Info()
	if len(proof) != ProofSize || len(pub) != PublicInputsSize {
		ev = c.logger.Warn()
	}
	ev.Int("proof_bytes", len(proof)).Int("public_input_bytes", len(pub)).Dur("generation", gen).Msg("proof generated")

	return &Result{Proof: proof, PublicInputs: pub, GenerationTime: gen}, nil
}
