package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var reviseCmd = &cobra.Command{
	Use:   "revise <test_case_id>",
	Short: "Add a new revision to a test case",
	Long: `Add a revision holding a new description. Earlier revisions and the
plans generated from them are left untouched.

Example:
  testctl revise 3 --text "Open /login, sign in with SSO and expect the dashboard"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		testCaseID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid test case ID %q\n", args[0])
			return
		}

		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		text, err = readDescription(text, file)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		result, err := newClient().AddRevision(cmd.Context(), testCaseID, text)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Revision %d added to test case %d\n", result.RevisionID, result.TestCaseID)
	},
}

func init() {
	flags := reviseCmd.Flags()
	flags.String("text", "", "Natural-language test description")
	flags.StringP("file", "f", "", "Read the description from a file")

	rootCmd.AddCommand(reviseCmd)
}
