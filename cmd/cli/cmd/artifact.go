package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var artifactCmd = &cobra.Command{
	Use:       "artifact [run_id] [video|screenshot]",
	Short:     "Download the video or failure screenshot of a run",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"video", "screenshot"},
	Run: func(cmd *cobra.Command, args []string) {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid run id %q\n", args[0])
			return
		}
		kind := args[1]
		if kind != "video" && kind != "screenshot" {
			cmd.Println("Error: artifact must be video or screenshot")
			return
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = "run-" + args[0] + "-" + kind
			if kind == "video" {
				out += ".webm"
			} else {
				out += ".png"
			}
		}

		n, err := newClient().DownloadArtifact(cmd.Context(), runID, kind, out)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Saved %s (%d bytes)\n", out, n)
	},
}

func init() {
	artifactCmd.Flags().StringP("output", "o", "", "Output file (default run-<id>-<kind>.<ext>)")
	rootCmd.AddCommand(artifactCmd)
}
