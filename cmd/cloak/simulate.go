package main

import (
	"fmt"
	"time"

	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/flow"
	"github.com/kysee/cloak/shield/node"
	"github.com/kysee/cloak/shield/poll"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
)

func (a *app) simulateCmd() *cobra.Command {
	var (
		to      string
		depth   int
		metrics bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <lamports>",
		Short: "Run a full deposit and send against an in-process ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseLamports(args[0])
			if err != nil {
				return err
			}
			recipient := types.PublicKey(types.RandBytes32())
			if to != "" {
				if recipient, err = types.ParsePublicKey(to); err != nil {
					return err
				}
			}
			keys, err := crypto.NewKeySet()
			if err != nil {
				return err
			}

			ledger := node.NewLedger(depth, a.logger)
			reg := prometheus.NewRegistry()
			out := cmd.OutOrStdout()
			fast := poll.Options{Interval: 10 * time.Millisecond, MaxAttempts: 50}
			runner := flow.NewRunner(flow.Deps{
				Store:   store.NewMemoryStore(),
				Indexer: ledger,
				Relay:   ledger,
				Prover:  ledger,
				Chain:   ledger,
				Keys:    keys,
			}, flow.Options{
				Network:     types.Localnet,
				DepositPoll: fast,
				RelayPoll:   fast,
				Observer: func(tr flow.Transition) {
					fmt.Fprintf(out, "  %-16s -> %s\n", tr.From, tr.To)
				},
			}, a.logger, flow.NewMetrics(reg))

			fmt.Fprintf(out, "recipient: %s\n", recipient)
			res, err := runner.Execute(cmd.Context(), amount, flow.Send(recipient))
			if res != nil {
				printResult(cmd, types.Localnet, "", res)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "pool balance: %d\n", ledger.PoolBalance())

			if metrics {
				mfs, err := reg.Gather()
				if err != nil {
					return err
				}
				for _, mf := range mfs {
					for _, m := range mf.GetMetric() {
						if c := m.GetCounter(); c != nil {
							fmt.Fprintf(out, "%s%v %v\n", mf.GetName(), labels(m.GetLabel()), c.GetValue())
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address, random when empty")
	cmd.Flags().IntVar(&depth, "depth", 20, "ledger merkle tree depth")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print the flow counters after the run")
	return cmd
}

func labels(pairs []*dto.LabelPair) map[string]string {
	ret := make(map[string]string, len(pairs))
	for _, p := range pairs {
		ret[p.GetName()] = p.GetValue()
	}
	return ret
}
