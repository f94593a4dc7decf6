package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/kysee/cloak/shield/types"
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

var nextID atomic.Uint64

// Call performs a JSON-RPC 2.0 request against the client's base URL.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if params == nil {
		params = []any{}
	}
	var resp jsonRPCResponse
	req := &jsonRPCRequest{JSONRPC: "2.0", ID: nextID.Add(1), Method: method, Params: params}
	if err := c.Do(ctx, http.MethodPost, "", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return &types.Error{
			Kind:    types.KindExternalService,
			Call:    c.service + " " + method,
			Message: fmt.Sprintf("rpc error %d: %s", resp.Error.Code, resp.Error.Message),
		}
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &types.Error{Kind: types.KindExternalService, Call: c.service + " " + method, Message: "decode result", Err: err}
	}
	return nil
}
