package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "testctl",
	Short: "testctl drives the testplane API from the terminal",
	Long: `testctl is the command-line interface for testplane.

testplane turns natural-language test descriptions into browser test plans
with an LLM, lets a human review them, and runs approved plans against a site
in a real browser, recording a video and a failure screenshot.

Common workflow:

  Describe a test:
    testctl create --title "login" --text "Open /login, sign in as {{user}} and expect the dashboard"

  Generate a plan from the revision and wait for it:
    testctl propose <revision-id> --wait

  Approve the plan:
    testctl ready <proposal-id>

  Run it against a site:
    testctl run <proposal-id> --site https://staging.example.com --param user=alice --wait

  Inspect results and download artifacts:
    testctl status run <run-id>
    testctl artifact <run-id> video -o run.webm

Configuration:
  Set the API endpoint with --url, the TESTPLANE_URL environment variable or
  "url" in $HOME/.testctl.yaml (default: http://localhost:6161).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".testctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".testctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TESTPLANE_VARNAME"
	viper.SetEnvPrefix("TESTPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.testctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "testplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

func newClient() *Client {
	return NewClient(viper.GetString("url"))
}

func printError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}
