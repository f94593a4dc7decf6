package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/rpc"
	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 10 * time.Second

// Client is the HTTP indexer client.
type Client struct {
	rpc *rpc.Client
}

var _ Indexer = (*Client)(nil)

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{rpc: rpc.NewClient("indexer", baseURL, DefaultTimeout, logger)}
}

// wire shapes. The indexer has used both camelCase and snake_case keys;
// normalize() maps either onto the canonical types once.

type depositWire struct {
	LeafIndex      *uint32 `json:"leafIndex"`
	LeafIndexSnake *uint32 `json:"leaf_index"`
	Root           string  `json:"root"`
}

func (w *depositWire) normalize() (*DepositResult, error) {
	idx := w.LeafIndex
	if idx == nil {
		idx = w.LeafIndexSnake
	}
	if idx == nil {
		return nil, types.NewError(types.KindExternalService, "indexer did not return leaf_index", nil)
	}
	return &DepositResult{LeafIndex: *idx, Root: w.Root}, nil
}

type proofWire struct {
	PathElements      []string `json:"pathElements"`
	PathElementsSnake []string `json:"path_elements"`
	PathIndices       []int    `json:"pathIndices"`
	PathIndicesSnake  []int    `json:"path_indices"`
	Root              string   `json:"root"`
}

func (w *proofWire) normalize() *merkle.Proof {
	p := &merkle.Proof{Root: w.Root, PathElements: w.PathElements, PathIndices: w.PathIndices}
	if p.PathElements == nil {
		p.PathElements = w.PathElementsSnake
	}
	if p.PathIndices == nil {
		p.PathIndices = w.PathIndicesSnake
	}
	return p
}

func (c *Client) Deposit(ctx context.Context, req *DepositRequest) (*DepositResult, error) {
	var w depositWire
	if err := c.rpc.Do(ctx, http.MethodPost, "/api/v1/deposit", req, &w); err != nil {
		return nil, err
	}
	return w.normalize()
}

// MerkleProof fetches the proof for leafIndex. Older indexers omit the root;
// it is then filled from the current tree root.
func (c *Client) MerkleProof(ctx context.Context, leafIndex uint32) (*merkle.Proof, error) {
	var w proofWire
	if err := c.rpc.Do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/merkle/proof/%d", leafIndex), nil, &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	if p.Root == "" {
		info, err := c.MerkleRoot(ctx)
		if err != nil {
			return nil, err
		}
		p.Root = info.Root
	}
	return p, nil
}

func (c *Client) MerkleRoot(ctx context.Context) (*RootInfo, error) {
	info := &RootInfo{}
	if err := c.rpc.Do(ctx, http.MethodGet, "/api/v1/merkle/root", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) NotesRange(ctx context.Context, start, end uint64, limit int) (*NotesRange, error) {
	q := url.Values{}
	q.Set("start", fmt.Sprint(start))
	q.Set("end", fmt.Sprint(end))
	q.Set("limit", fmt.Sprint(limit))
	out := &NotesRange{}
	if err := c.rpc.Do(ctx, http.MethodGet, "/api/v1/notes/range?"+q.Encode(), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.rpc.Do(ctx, http.MethodGet, "/health", nil, &out)
}
