package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/types"
	"github.com/spf13/cobra"
)

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the wallet key set",
	}

	var force bool
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a master seed and derive the spend and view keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfg.KeysPath); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to replace it", a.cfg.KeysPath)
			}
			ks, err := crypto.NewKeySet()
			if err != nil {
				return err
			}
			bz, err := crypto.ExportKeys(ks)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(a.cfg.KeysPath), 0700); err != nil {
				return err
			}
			if err := os.WriteFile(a.cfg.KeysPath, bz, 0600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keys written to %s\n", a.cfg.KeysPath)
			printPublicKeys(cmd, ks)
			return nil
		},
	}
	newCmd.Flags().BoolVar(&force, "force", false, "overwrite existing keys")

	var secret bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the public keys, or the full backup with --secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.loadKeys()
			if err != nil {
				return err
			}
			if secret {
				bz, err := crypto.ExportKeys(ks)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(bz))
				return nil
			}
			printPublicKeys(cmd, ks)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&secret, "secret", false, "print the key backup including secrets")

	cmd.AddCommand(newCmd, showCmd)
	return cmd
}

func printPublicKeys(cmd *cobra.Command, ks *crypto.KeySet) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pk_spend: %s\n", hex.EncodeToString(ks.Spend.Public[:]))
	fmt.Fprintf(out, "pvk:      %s\n", hex.EncodeToString(ks.View.Public[:]))
	fmt.Fprintf(out, "address:  %s\n", types.PublicKey(ks.Spend.Public).String())
}
