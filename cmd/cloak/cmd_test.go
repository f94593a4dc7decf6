package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kysee/cloak/shield/types"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", filepath.Join(home, "config.yaml"), "--log-level", "disabled"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestKeysAndNotes(t *testing.T) {
	home := t.TempDir()

	_, err := run(t, home, "note", "new", "1000")
	require.ErrorContains(t, err, "cloak keys new")

	out, err := run(t, home, "keys", "new")
	require.NoError(t, err)
	require.Contains(t, out, "pvk:")
	require.FileExists(t, filepath.Join(home, "keys.json"))

	_, err = run(t, home, "keys", "new")
	require.ErrorContains(t, err, "--force")

	shown, err := run(t, home, "keys", "show")
	require.NoError(t, err)
	require.Contains(t, out, strings.TrimSpace(strings.Split(shown, "\n")[1]))

	exportDir := filepath.Join(home, "export")
	out, err = run(t, home, "note", "new", "1000000000", "--out", exportDir)
	require.NoError(t, err)
	require.Contains(t, out, "exported to")

	files, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	notePath := filepath.Join(exportDir, files[0].Name())

	bz, err := os.ReadFile(notePath)
	require.NoError(t, err)
	note, err := types.ParseNote(bz)
	require.NoError(t, err)
	require.Equal(t, uint64(1000000000), note.Amount)

	out, err = run(t, home, "note", "verify", notePath)
	require.NoError(t, err)
	require.Contains(t, out, "commitment ok")
	require.Contains(t, out, "no merkle proof pinned")

	out, err = run(t, home, "note", "list", "--all")
	require.NoError(t, err)
	require.Contains(t, out, note.Commitment)
	require.Contains(t, out, "spendable: 0 lamports")

	_, err = run(t, home, "note", "new", "abc")
	require.ErrorIs(t, err, types.ErrMalformedInput)
}

func TestFee(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "fee", "1000000000")
	require.NoError(t, err)
	require.Contains(t, out, "fee:           7500000")
	require.Contains(t, out, "fee_bps:       75")
	require.Contains(t, out, "distributable: 992500000")

	out, err = run(t, home, "fee", "1000000000", "--mode", "swap")
	require.NoError(t, err)
	require.Contains(t, out, "fee_bps:       50")

	_, err = run(t, home, "fee", "1000")
	require.Error(t, err)
}

func TestSimulate(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "simulate", "1000000000", "--depth", "8", "--metrics")
	require.NoError(t, err)
	require.Contains(t, out, "state:     sent")
	require.Contains(t, out, "fee:       7500000 (75 bps)")
	require.Contains(t, out, "pool balance: 0")
	require.Contains(t, out, "cloak_flow_runs_total")
}

func TestSpendFlags(t *testing.T) {
	addr := types.PublicKey(types.RandBytes32()).String()

	f := &spendFlags{to: addr}
	req, err := f.request(types.ModeSend)
	require.NoError(t, err)
	require.Len(t, req.Outputs, 1)

	f = &spendFlags{outputs: []string{addr + ":10", addr + ":20"}}
	req, err = f.request(types.ModeSend)
	require.NoError(t, err)
	require.Equal(t, uint64(20), req.Outputs[1].Amount)

	f = &spendFlags{outputs: []string{addr}}
	_, err = f.request(types.ModeSend)
	require.ErrorIs(t, err, types.ErrMalformedInput)

	f = &spendFlags{stakeAccount: addr}
	_, err = f.request(types.ModeUnstake)
	require.Error(t, err)

	f = &spendFlags{stakeAccount: addr, to: addr}
	req, err = f.request(types.ModeUnstake)
	require.NoError(t, err)
	require.Equal(t, addr, req.Unstake.Recipient.String())
}
