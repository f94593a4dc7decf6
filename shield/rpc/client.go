package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
)

const maxErrorBody = 512

// Client talks JSON over HTTP to one external service. Every failure comes
// back as an external_service *types.Error naming the call.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient returns a client for service. A zero timeout leaves deadlines to
// the caller's context.
func NewClient(service, baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("service", service).Logger(),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// Do sends in as the JSON body (if non-nil) and decodes the response into out
// (if non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	call := c.service + " " + method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &types.Error{Kind: types.KindMalformedInput, Call: call, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &types.Error{Kind: types.KindExternalService, Call: call, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &types.Error{Kind: types.KindCanceled, Call: call, Err: ctx.Err()}
		}
		return &types.Error{Kind: types.KindExternalService, Call: call, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.Error{Kind: types.KindExternalService, Call: call, Message: "read response", Err: err}
	}
	c.logger.Debug().
		Str("call", call).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("external call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &types.Error{
			Kind:    types.KindExternalService,
			Call:    call,
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, ServiceMessage(data)),
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &types.Error{Kind: types.KindExternalService, Call: call, Message: "decode response", Err: err}
	}
	return nil
}

// ServiceMessage extracts the error text a service put in its response body.
func ServiceMessage(body []byte) string {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		var s string
		if len(env.Error) > 0 && json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if len(env.Error) > 0 && json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
