package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var readyCmd = &cobra.Command{
	Use:   "ready [proposal_id]",
	Short: "Approve a generated plan so it can be run",
	Long:  `Mark a succeeded proposal as ready for test. Only ready proposals can be run.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid proposal id %q\n", args[0])
			return
		}

		proposal, err := newClient().MarkReady(cmd.Context(), id)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Proposal %d is ready for test\n", proposal.ID)
	},
}

func init() {
	rootCmd.AddCommand(readyCmd)
}
