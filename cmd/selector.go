package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/hybrid-compute/pkg/byte4"
)

var selectorCmd = &cobra.Command{
	Use:     "selector <signature>...",
	Short:   "Print the 4-byte selector of function signatures",
	Example: `hcnode selector "addsub2(uint32,uint32)"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, sig := range args {
			if _, _, err := byte4.ParseSignature(sig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", byte4.SelectorHex(sig), byte4.Canonicalize(sig))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selectorCmd)
}
