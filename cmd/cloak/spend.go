package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kysee/cloak/shield/fee"
	"github.com/kysee/cloak/shield/flow"
	"github.com/kysee/cloak/shield/indexer"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/relay"
	"github.com/kysee/cloak/shield/types"
	"github.com/spf13/cobra"
)

type spendFlags struct {
	mode         string
	to           string
	outputs      []string
	outputMint   string
	recipientATA string
	minOutput    uint64
	slippageBps  uint64
	stakeAccount string
	authority    string
	validator    string
}

func (a *app) spendCmd() *cobra.Command {
	f := &spendFlags{}
	cmd := &cobra.Command{
		Use:   "spend <commitment>",
		Short: "Privately spend a deposited note through the prover and relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := types.ParseMode(f.mode)
			if err != nil {
				return err
			}
			req, err := f.request(m)
			if err != nil {
				return err
			}
			w, closeFn, err := a.openWallet()
			if err != nil {
				return err
			}
			defer closeFn()

			opts := flow.DefaultOptions(a.cfg.Network)
			opts.DepositPoll, opts.RelayPoll = a.cfg.DepositPoll(), a.cfg.RelayPoll()
			runner := flow.NewRunner(flow.Deps{
				Store:   w.Store(),
				Indexer: indexer.NewClient(a.cfg.IndexerURL, a.logger),
				Relay:   relay.NewClient(a.cfg.RelayURL, a.logger),
				Prover:  prover.NewClient(a.cfg.ProverURL, a.cfg.Prover.Timeout, a.logger),
				Keys:    w.Keys(),
			}, opts, a.logger, nil)

			res, err := runner.Spend(cmd.Context(), args[0], req)
			if res != nil {
				printResult(cmd, a.cfg.Network, a.cfg.RPCURL, res)
			}
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", string(types.ModeSend), "send, swap, stake or unstake")
	fl.StringVar(&f.to, "to", "", "recipient of the whole distributable amount (send) or of the proceeds (swap, unstake)")
	fl.StringSliceVar(&f.outputs, "output", nil, "explicit send output as <address>:<lamports>, repeatable")
	fl.StringVar(&f.outputMint, "output-mint", "", "swap: mint to receive")
	fl.StringVar(&f.recipientATA, "recipient-ata", "", "swap: token account receiving the output mint")
	fl.Uint64Var(&f.minOutput, "min-output", 0, "swap: minimum output amount")
	fl.Uint64Var(&f.slippageBps, "slippage-bps", flow.DefaultSlippageBps, "swap: slippage tolerance")
	fl.StringVar(&f.stakeAccount, "stake-account", "", "stake, unstake: stake account")
	fl.StringVar(&f.authority, "stake-authority", "", "stake: stake authority")
	fl.StringVar(&f.validator, "validator", "", "stake: validator vote account")
	return cmd
}

func (f *spendFlags) request(m types.Mode) (*flow.Request, error) {
	switch m {
	case types.ModeSend:
		if len(f.outputs) == 0 {
			to, err := types.ParsePublicKey(f.to)
			if err != nil {
				return nil, err
			}
			return flow.Send(to), nil
		}
		req := &flow.Request{Mode: m}
		for _, o := range f.outputs {
			out, err := parseOutput(o)
			if err != nil {
				return nil, err
			}
			req.Outputs = append(req.Outputs, out)
		}
		return req, nil
	case types.ModeSwap:
		keys, err := parseKeys(f.to, f.outputMint, f.recipientATA)
		if err != nil {
			return nil, err
		}
		return &flow.Request{Mode: m, Swap: &flow.SwapRequest{
			Recipient:       keys[0],
			OutputMint:      keys[1],
			RecipientATA:    keys[2],
			MinOutputAmount: f.minOutput,
			SlippageBps:     f.slippageBps,
		}}, nil
	case types.ModeStake:
		keys, err := parseKeys(f.stakeAccount, f.authority, f.validator)
		if err != nil {
			return nil, err
		}
		return &flow.Request{Mode: m, Stake: &flow.StakeRequest{
			StakeAccount:         keys[0],
			StakeAuthority:       keys[1],
			ValidatorVoteAccount: keys[2],
		}}, nil
	default:
		keys, err := parseKeys(f.stakeAccount, f.to)
		if err != nil {
			return nil, err
		}
		return &flow.Request{Mode: m, Unstake: &flow.UnstakeRequest{
			StakeAccount: keys[0],
			Recipient:    keys[1],
		}}, nil
	}
}

func parseKeys(addrs ...string) ([]types.PublicKey, error) {
	ret := make([]types.PublicKey, len(addrs))
	for i, s := range addrs {
		pk, err := types.ParsePublicKey(s)
		if err != nil {
			return nil, err
		}
		ret[i] = pk
	}
	return ret, nil
}

func parseOutput(s string) (fee.Output, error) {
	addr, amt, ok := strings.Cut(s, ":")
	if !ok {
		return fee.Output{}, types.Malformed("output %q is not <address>:<lamports>", s)
	}
	pk, err := types.ParsePublicKey(addr)
	if err != nil {
		return fee.Output{}, err
	}
	amount, err := strconv.ParseUint(amt, 10, 64)
	if err != nil {
		return fee.Output{}, types.Malformed("invalid output amount %q", amt)
	}
	return fee.Output{Recipient: pk, Amount: amount}, nil
}

func printResult(cmd *cobra.Command, network types.Network, rpcURL string, res *flow.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "flow:      %s\n", res.FlowID)
	fmt.Fprintf(out, "state:     %s\n", res.State)
	if res.Note != nil {
		fmt.Fprintf(out, "note:      %s (%d lamports)\n", res.Note.Commitment, res.Note.Amount)
	}
	if res.DepositSignature != "" {
		fmt.Fprintf(out, "deposit:   %s (slot %d)\n", res.DepositSignature, res.DepositSlot)
	}
	if res.Fee > 0 {
		fmt.Fprintf(out, "fee:       %d (%d bps)\n", res.Fee, res.FeeBps)
	}
	if res.RequestID != "" {
		fmt.Fprintf(out, "request:   %s\n", res.RequestID)
	}
	if res.TxID != "" {
		fmt.Fprintf(out, "tx:        %s\n", res.TxID)
		fmt.Fprintf(out, "explorer:  %s\n", network.ExplorerURL(res.TxID, rpcURL))
	}
}
