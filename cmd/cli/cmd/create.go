package cmd

import (
	"errors"
	"os"
	"strings"

	"testplane/pkg/api"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a test case from a natural-language description",
	Long: `Create a test case. The description becomes its first revision, which
can then be turned into a plan with "testctl propose".

Placeholders such as {{user}} are kept verbatim and filled in at run time.

Example:
  testctl create --title "login" --text "Open /login and expect the heading Sign in"
  testctl create --title "checkout" --file checkout.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		title, _ := flags.GetString("title")
		text, _ := flags.GetString("text")
		file, _ := flags.GetString("file")

		if title == "" {
			cmd.Println("Error: --title is required")
			return
		}
		text, err := readDescription(text, file)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		result, err := newClient().CreateTestCase(cmd.Context(), api.CreateTestCaseRequest{
			Title:  title,
			NLText: text,
		})
		if err != nil {
			printError(cmd, err)
			return
		}

		cmd.Printf("✓ Test case created!\nID: %d\nRevision: %d\n", result.TestCaseID, result.RevisionID)
	},
}

// readDescription returns the contents of file when set, else text. An empty
// description is an error.
func readDescription(text, file string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("--text or --file is required")
	}
	return text, nil
}

func init() {
	flags := createCmd.Flags()
	flags.String("title", "", "Title of the test case (required)")
	flags.String("text", "", "Natural-language test description")
	flags.StringP("file", "f", "", "Read the description from a file")

	rootCmd.AddCommand(createCmd)
}
