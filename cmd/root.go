package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	configFile = "./config/hcnode.yaml"
	rootCmd    = &cobra.Command{
		Use:   "hcnode",
		Short: "Hybrid compute node",
		Long: `hcnode serves the off-chain handlers a hybrid account calls out to,
and drives user operations through a bundler to exercise them.

Such as "hcnode offchain" or "hcnode userop addsub2 --a 2 --b 1" and so on
`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/hcnode.yaml", "Path to config file")
}
