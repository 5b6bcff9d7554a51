package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/hybrid-compute/node"
)

var (
	offchainCmd = &cobra.Command{
		Use:   "offchain",
		Short: "Run the off-chain handler server",
		Long: `Register addsub2 and the remote handlers from the config, then serve
them over JSON-RPC on / and /hc until interrupted.

Use --config=path-to-your-config-file. default is=./config/hcnode.yaml `,
		RunE: func(cmd *cobra.Command, args []string) error {
			return node.RunOffchain(configFile)
		},
	}
)

func init() {
	rootCmd.AddCommand(offchainCmd)
}
