package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/oracle/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the oracle build",
	Long: `Show the oracle version, commit and build date. With --verbose, also the
Go toolchain, platform and the versions of the model, storage and secrets
client libraries.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := version.Info()
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			out = version.Full()
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
