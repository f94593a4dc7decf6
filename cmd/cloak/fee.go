package main

import (
	"fmt"

	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/types"
	"github.com/spf13/cobra"
)

func (a *app) feeCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "fee <lamports>",
		Short: "Show the protocol fee and distributable amount for a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseLamports(args[0])
			if err != nil {
				return err
			}
			m, err := types.ParseMode(mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "amount:        %d\n", amount)
			fmt.Fprintf(out, "fee:           %d\n", fee.Fee(amount))
			fmt.Fprintf(out, "fee_bps:       %d\n", fee.FeeBps(amount, m))
			d, err := fee.Distributable(amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "distributable: %d\n", d)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(types.ModeSend), "send, swap, stake or unstake")
	return cmd
}
