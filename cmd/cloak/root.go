package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kysee/cloak/shield/config"
	"github.com/kysee/cloak/shield/crypto"
	"github.com/kysee/cloak/shield/store"
	"github.com/kysee/cloak/shield/wallet"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     zerolog.Logger
	closer     io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "cloak",
		Short:         "Shielded SOL notes: keys, notes, fees and private sends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&a.configPath, "config", filepath.Join(config.DefaultHome, "config.yaml"), "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		a.keysCmd(),
		a.noteCmd(),
		a.feeCmd(),
		a.scanCmd(),
		a.spendCmd(),
		a.simulateCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closer = cfg, logger, closer
	return nil
}

func (a *app) loadKeys() (*crypto.KeySet, error) {
	bz, err := os.ReadFile(a.cfg.KeysPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no keys at %s, run `cloak keys new` first", a.cfg.KeysPath)
	}
	if err != nil {
		return nil, err
	}
	return crypto.ImportKeys(bz)
}

func (a *app) openStore() (store.NoteStore, error) {
	if a.cfg.Store.Backend != "memory" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0700); err != nil {
			return nil, err
		}
	}
	return store.Open(a.cfg.Store.Backend, a.cfg.Store.Path)
}

// openWallet returns the wallet and a func closing its store.
func (a *app) openWallet() (*wallet.Wallet, func(), error) {
	keys, err := a.loadKeys()
	if err != nil {
		return nil, nil, err
	}
	s, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	w := wallet.New(keys, s, a.cfg.Network, a.logger)
	return w, func() { _ = s.Close() }, nil
}
