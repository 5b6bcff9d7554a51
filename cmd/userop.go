package cmd

import (
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/hybrid-compute/node"
)

var (
	addsub2A uint32
	addsub2B uint32

	useropCmd = &cobra.Command{
		Use:   "userop",
		Short: "Drive user operations through the bundler",
	}

	addsub2Cmd = &cobra.Command{
		Use:   "addsub2",
		Short: "Send one TestCounter.count(a, b) operation and print the fee report",
		Long: `Build, estimate, sign and submit an operation from the owner's account
that calls TestCounter.count(a, b), which asks the hybrid account for
addsub2(a, b). Waits for the receipt and prints the fee report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases := []node.Case{{A: addsub2A, B: addsub2B}}
			return node.RunUserOps(configFile, cases, cmd.OutOrStdout())
		},
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run the addsub2 demo cases and print the fee report",
		Long: `Runs addsub2 with (2,1) (2,10) (2,3) (7,0) (4,1): successes, an underflow
rejected during estimation, an underflow the counter handles and a call
that stays on chain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return node.RunUserOps(configFile, node.DemoCases, cmd.OutOrStdout())
		},
	}
)

func init() {
	addsub2Cmd.Flags().Uint32Var(&addsub2A, "a", 2, "first operand")
	addsub2Cmd.Flags().Uint32Var(&addsub2B, "b", 1, "second operand")

	useropCmd.AddCommand(addsub2Cmd)
	useropCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(useropCmd)
}
