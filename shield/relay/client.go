package relay

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/kysee/cloak/shield/rpc"
	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 30 * time.Second

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data"`
	Error   string `json:"error"`
}

type Client struct {
	rpc *rpc.Client
}

var _ Relay = (*Client)(nil)

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{rpc: rpc.NewClient("relay", baseURL, DefaultTimeout, logger)}
}

func (c *Client) Withdraw(ctx context.Context, req *WithdrawRequest) (string, error) {
	var resp envelope[struct {
		RequestID string `json:"request_id"`
	}]
	if err := c.rpc.Do(ctx, http.MethodPost, "/withdraw", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "relay withdraw failed"
		}
		return "", &types.Error{Kind: types.KindExternalService, Call: "relay POST /withdraw", Message: msg}
	}
	if resp.Data == nil || resp.Data.RequestID == "" {
		return "", &types.Error{Kind: types.KindExternalService, Call: "relay POST /withdraw", Message: "relay response missing request_id"}
	}
	return resp.Data.RequestID, nil
}

func (c *Client) Status(ctx context.Context, requestID string) (*JobStatus, error) {
	var resp envelope[JobStatus]
	if err := c.rpc.Do(ctx, http.MethodGet, "/status/"+url.PathEscape(requestID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &types.Error{Kind: types.KindExternalService, Call: "relay GET /status", Message: "relay status missing data"}
	}
	return resp.Data, nil
}
