// Command minter runs mint campaigns across EVM networks and serves their control API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zkminter/internal/config"
	"zkminter/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "minter",
		Short: "Mint campaign NFTs from a batch of wallets across EVM networks",
		Long: `minter sends a campaign's mint call from every wallet in the key file on a
random draw of networks, pacing the attempts and recording what landed.

Configuration is read from config.yaml (or --config) with MINTER_ env overrides.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			return initLogging(cfg)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml)")

	loaded := func() *config.Config { return cfg }
	root.AddCommand(
		newMintCmd(loaded),
		newNetworksCmd(loaded),
		newServeCmd(loaded),
	)
	return root
}
