package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"testplane/pkg/api"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [proposal_id]",
	Short: "Run a ready plan against a site",
	Long: `Queue a browser run of a ready proposal.

Placeholders in the plan are filled from --param key=value pairs; unknown
placeholders are left as they are.

Example:
  testctl run 12 --site https://staging.example.com --param user=alice --param pass=secret
  testctl run 12 --site http://localhost:3000 --browser firefox --headed --wait`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		proposalID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid proposal id %q\n", args[0])
			return
		}

		flags := cmd.Flags()
		site, _ := flags.GetString("site")
		browserName, _ := flags.GetString("browser")
		headed, _ := flags.GetBool("headed")
		timeoutMS, _ := flags.GetInt("timeout-ms")
		rawParams, _ := flags.GetStringArray("param")
		wait, _ := flags.GetBool("wait")
		interval, _ := flags.GetDuration("interval")
		waitTimeout, _ := flags.GetDuration("wait-timeout")

		if site == "" {
			cmd.Println("Error: --site is required")
			return
		}
		params, err := parseParams(rawParams)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		headless := !headed
		client := newClient()
		run, err := client.CreateRun(cmd.Context(), api.CreateRunRequest{
			PlanProposalID: proposalID,
			SiteDomain:     site,
			Browser:        browserName,
			Headless:       &headless,
			TimeoutMS:      timeoutMS,
			Placeholders:   params,
		})
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Run %d queued\n", run.ID)

		if wait {
			run, err = waitForRun(cmd, client, run.ID, interval, waitTimeout)
			if err != nil {
				printError(cmd, err)
				return
			}
			printRun(cmd, *run)
		}
	},
}

// parseParams turns key=value pairs into a placeholder map.
func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--param %q must be key=value", kv)
		}
		out[key] = value
	}
	return out, nil
}

func init() {
	flags := runCmd.Flags()
	flags.String("site", "", "Base URL of the site under test, e.g. https://example.com (required)")
	flags.String("browser", "chromium", "Browser: chromium, firefox or webkit")
	flags.Bool("headed", false, "Show the browser window")
	flags.Int("timeout-ms", 0, "Per-action timeout in milliseconds (0 uses the worker default)")
	flags.StringArrayP("param", "p", nil, "Placeholder value as key=value (repeatable)")
	flags.Bool("wait", false, "Wait until the run finishes")
	flags.Duration("interval", 2*time.Second, "Polling interval with --wait")
	flags.Duration("wait-timeout", 15*time.Minute, "Give up waiting after this long")

	rootCmd.AddCommand(runCmd)
}
