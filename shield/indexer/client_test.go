package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/kysee/cloak/shield/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	rootHex = strings.Repeat("aa", 32)
	sibHex  = strings.Repeat("bb", 32)
)

func testServer(t *testing.T, total int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/deposit", func(w http.ResponseWriter, r *http.Request) {
		var req DepositRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.LeafCommit == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"missing leaf_commit"}`))
			return
		}
		_, _ = w.Write([]byte(fmt.Sprintf(`{"leaf_index":12,"root":%q}`, rootHex)))
	})
	mux.HandleFunc("GET /api/v1/merkle/proof/{idx}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("idx") == "1" {
			// legacy shape without root
			_, _ = w.Write([]byte(fmt.Sprintf(`{"pathElements":[%q],"pathIndices":[1]}`, sibHex)))
			return
		}
		_, _ = w.Write([]byte(fmt.Sprintf(`{"path_elements":[%q],"path_indices":[0],"root":%q}`, sibHex, rootHex)))
	})
	mux.HandleFunc("GET /api/v1/merkle/root", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(`{"root":%q,"next_index":%d}`, rootHex, total)))
	})
	mux.HandleFunc("GET /api/v1/notes/range", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		end, _ := strconv.Atoi(r.URL.Query().Get("end"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))
		var notes []string
		for i := start; i <= end; i++ {
			notes = append(notes, fmt.Sprintf("note-%d", i))
		}
		_ = json.NewEncoder(w).Encode(&NotesRange{Notes: notes, HasMore: end < total-1, Total: uint64(total), Start: uint64(start), End: uint64(end)})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Deposit(t *testing.T) {
	c := NewClient(testServer(t, 0).URL, zerolog.Nop())

	res, err := c.Deposit(context.Background(), &DepositRequest{LeafCommit: rootHex, EncryptedOutput: "e30=", TxSignature: "sig", Slot: 9})
	require.NoError(t, err)
	require.Equal(t, uint32(12), res.LeafIndex)
	require.Equal(t, rootHex, res.Root)

	_, err = c.Deposit(context.Background(), &DepositRequest{})
	require.ErrorIs(t, err, types.ErrExternalService)
	require.ErrorContains(t, err, "missing leaf_commit")
}

func TestClient_MerkleProof_Normalized(t *testing.T) {
	c := NewClient(testServer(t, 0).URL, zerolog.Nop())

	p, err := c.MerkleProof(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []string{sibHex}, p.PathElements)
	require.Equal(t, []int{0}, p.PathIndices)
	require.Equal(t, rootHex, p.Root)

	p, err = c.MerkleProof(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []int{1}, p.PathIndices)
	require.Equal(t, rootHex, p.Root)
}

func TestFetchAllNotes(t *testing.T) {
	c := NewClient(testServer(t, 250).URL, zerolog.Nop())
	notes, err := FetchAllNotes(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, notes, 250)
	require.Equal(t, "note-0", notes[0])
	require.Equal(t, "note-249", notes[249])

	empty := NewClient(testServer(t, 0).URL, zerolog.Nop())
	notes, err = FetchAllNotes(context.Background(), empty)
	require.NoError(t, err)
	require.Empty(t, notes)

	require.NoError(t, c.Health(context.Background()))
}
