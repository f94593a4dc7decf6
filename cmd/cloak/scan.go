package main

import (
	"fmt"

	"github.com/kysee/cloak/shield/indexer"
	"github.com/spf13/cobra"
)

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "scan",
		Aliases: []string{"sync"},
		Short:   "Recover notes addressed to this wallet from the indexer",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeFn, err := a.openWallet()
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := w.Sync(cmd.Context(), indexer.NewClient(a.cfg.IndexerURL, a.logger))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d outputs: %d imported, %d recovered, %d deposited, %d spent\n",
				res.Scanned, res.Imported, res.Recovered, res.Deposited, res.Spent)
			return nil
		},
	}
}
