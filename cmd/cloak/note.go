package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/types"
	"github.com/kysee/cloak/utils"
	"github.com/spf13/cobra"
)

func (a *app) noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Create, import, export and inspect notes",
	}

	var out string
	newCmd := &cobra.Command{
		Use:   "new <lamports>",
		Short: "Generate a note for an amount and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseLamports(args[0])
			if err != nil {
				return err
			}
			w, closeFn, err := a.openWallet()
			if err != nil {
				return err
			}
			defer closeFn()

			note, err := w.NewNote(cmd.Context(), amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commitment: %s\n", note.Commitment)
			if out != "" {
				return writeNote(cmd, note, out)
			}
			return nil
		},
	}
	newCmd.Flags().StringVar(&out, "out", "", "also export the note to this directory")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a note exported by any Cloak client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			note, err := store.ImportNote(cmd.Context(), s, bz)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s, %d lamports)\n",
				utils.Short(note.Commitment), note.Status, note.Amount)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a note file's commitment and pinned merkle proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			note, err := types.ParseNote(bz)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commitment ok: %s\n", note.Commitment)
			if note.Root == "" || note.MerkleProof == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no merkle proof pinned")
				return nil
			}
			if err := merkle.Verify(note.Commitment, merkle.FromPath(note.Root, note.MerkleProof)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merkle proof ok: root %s\n", note.Root)
			return nil
		},
	}

	var all bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeFn, err := a.openWallet()
			if err != nil {
				return err
			}
			defer closeFn()

			load := w.Store().LoadSpendable
			if all {
				load = w.Store().LoadAll
			}
			notes, err := load(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMMITMENT\tAMOUNT\tSTATUS\tLEAF\tNETWORK")
			for _, n := range notes {
				leaf := "-"
				if n.LeafIndex != nil {
					leaf = strconv.FormatUint(uint64(*n.LeafIndex), 10)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", n.Commitment, n.Amount, n.Status, leaf, n.Network)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			balance, err := w.SpendableBalance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spendable: %s lamports\n", balance.Dec())
			return nil
		},
	}
	listCmd.Flags().BoolVar(&all, "all", false, "include generated and spent notes")

	exportCmd := &cobra.Command{
		Use:   "export <commitment> <dir>",
		Short: "Write a stored note to a portable JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			note, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeNote(cmd, note, args[1])
		},
	}

	cmd.AddCommand(newCmd, importCmd, verifyCmd, listCmd, exportCmd)
	return cmd
}

func writeNote(cmd *cobra.Command, note *types.Note, dir string) error {
	bz, err := store.ExportNote(note)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	path := filepath.Join(dir, store.ExportFileName(note))
	if err := os.WriteFile(path, bz, 0600); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", path)
	return nil
}

func parseLamports(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil || amount == 0 {
		return 0, types.Malformed("invalid lamports %q", s)
	}
	return amount, nil
}
