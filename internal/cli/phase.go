package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/oracle/internal/trends"
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Print the current digital moon phase",
	Long: `Print the phase of the digital moon. The cycle has eight phases and
advances once per second.

Examples:
  oracle phase
  oracle phase --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		printPhase(cmd.OutOrStdout(), time.Now(), all)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(phaseCmd)

	phaseCmd.Flags().Bool("all", false, "Show the whole cycle, marking the current phase")
}

func printPhase(w io.Writer, now time.Time, all bool) {
	current := trends.ComputePhase(now)
	if !all {
		fmt.Fprintln(w, current)
		return
	}
	for i, p := range trends.Phases() {
		marker := " "
		if p == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %d %s\n", marker, i, p)
	}
}
