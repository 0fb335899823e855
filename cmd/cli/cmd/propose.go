package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var proposeCmd = &cobra.Command{
	Use:   "propose [revision_id]",
	Short: "Generate a test plan for a revision",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		revisionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid revision id %q\n", args[0])
			return
		}
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client := newClient()
		proposal, err := client.CreateProposal(cmd.Context(), revisionID)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Proposal %d queued\n", proposal.ID)

		if wait {
			proposal, err = waitForProposal(cmd, client, proposal.ID, interval, timeout)
			if err != nil {
				printError(cmd, err)
				return
			}
			printProposal(cmd, *proposal)
		}
	},
}

func init() {
	flags := proposeCmd.Flags()
	flags.Bool("wait", false, "Wait until generation finishes")
	flags.Duration("interval", 2*time.Second, "Polling interval with --wait")
	flags.Duration("timeout", 5*time.Minute, "Give up waiting after this long")

	rootCmd.AddCommand(proposeCmd)
}
