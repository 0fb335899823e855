package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"testplane/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a proposal or a run",
}

var statusProposalCmd = &cobra.Command{
	Use:   "proposal [proposal_id]",
	Short: "Show a proposal and its generated plan",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid proposal id %q\n", args[0])
			return
		}
		proposal, err := newClient().GetProposal(cmd.Context(), id)
		if err != nil {
			printError(cmd, err)
			return
		}
		printProposal(cmd, *proposal)
	},
}

var statusRunCmd = &cobra.Command{
	Use:   "run [run_id]",
	Short: "Show a run and its result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Error: invalid run id %q\n", args[0])
			return
		}
		run, err := newClient().GetRun(cmd.Context(), id)
		if err != nil {
			printError(cmd, err)
			return
		}
		printRun(cmd, *run)
	},
}

func printProposal(cmd *cobra.Command, p api.ProposalResponse) {
	cmd.Printf("%s %sProposal Details%s\n", statusIcon(p.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %d\n", colorDim, colorReset, p.ID)
	cmd.Printf("%sRevision:%s    %d\n", colorDim, colorReset, p.RevisionID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(p.Status))
	if p.IsReadyForTest {
		cmd.Printf("%sReady:%s       %syes%s since %s\n", colorDim, colorReset, colorGreen, colorReset, formatTimeWithRelative(p.ReadyForTestAt))
	} else {
		cmd.Printf("%sReady:%s       no\n", colorDim, colorReset)
	}
	if p.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *p.Error, colorReset)
	}
	printTimes(cmd, p.CreatedAt, p.StartedAt, p.FinishedAt)

	if len(p.Plan) > 0 {
		var plan struct {
			Steps      []string `json:"steps"`
			Assertions []string `json:"assertions"`
		}
		if err := json.Unmarshal(p.Plan, &plan); err == nil {
			cmd.Printf("\n%sSteps%s\n", colorBold, colorReset)
			printNumbered(cmd, plan.Steps)
			cmd.Printf("%sAssertions%s\n", colorBold, colorReset)
			printNumbered(cmd, plan.Assertions)
		}
	}
}

func printRun(cmd *cobra.Command, r api.RunResponse) {
	cmd.Printf("%s %sRun Details%s\n", statusIcon(r.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %d\n", colorDim, colorReset, r.ID)
	cmd.Printf("%sProposal:%s    %d\n", colorDim, colorReset, r.PlanProposalID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(r.Status))
	cmd.Printf("%sSite:%s        %s\n", colorDim, colorReset, r.SiteDomain)
	mode := "headless"
	if !r.Headless {
		mode = "headed"
	}
	cmd.Printf("%sBrowser:%s     %s (%s)\n", colorDim, colorReset, r.Browser, mode)
	if r.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *r.Error, colorReset)
	}
	printTimes(cmd, r.CreatedAt, r.StartedAt, r.FinishedAt)

	if r.Result != nil {
		cmd.Printf("%sFinal URL:%s   %s\n", colorDim, colorReset, r.Result.FinalURL)
		cmd.Printf("\n%sExecuted steps%s\n", colorBold, colorReset)
		printNumbered(cmd, r.Result.ExecutedSteps)
		cmd.Printf("%sExecuted assertions%s\n", colorBold, colorReset)
		printNumbered(cmd, r.Result.ExecutedAssertions)
	}
	if r.VideoName != nil {
		cmd.Printf("%sVideo:%s       %s (testctl artifact %d video)\n", colorDim, colorReset, *r.VideoName, r.ID)
	}
	if r.ScreenshotName != nil {
		cmd.Printf("%sScreenshot:%s  %s (testctl artifact %d screenshot)\n", colorDim, colorReset, *r.ScreenshotName, r.ID)
	}
}

func printNumbered(cmd *cobra.Command, lines []string) {
	if len(lines) == 0 {
		cmd.Println("  -")
		return
	}
	for i, l := range lines {
		cmd.Printf("  %2d. %s\n", i+1, l)
	}
}

func printTimes(cmd *cobra.Command, created time.Time, started, finished *time.Time) {
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&created))
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(started))
	if started != nil && finished != nil {
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(finished),
			colorCyan, formatDuration(finished.Sub(*started)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(finished))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "succeeded", "passed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "pending", "queued":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "succeeded", "passed":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "running":
		return icon + " " + colorYellow + status + colorReset
	case "pending", "queued":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.AddCommand(statusProposalCmd, statusRunCmd)
	rootCmd.AddCommand(statusCmd)
}
