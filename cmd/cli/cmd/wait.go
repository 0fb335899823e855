package cmd

import (
	"context"
	"fmt"
	"time"

	"testplane/pkg/api"

	"github.com/spf13/cobra"
)

func isTerminal(status string) bool {
	switch status {
	case "succeeded", "failed", "passed":
		return true
	}
	return false
}

// poll calls fetch every interval until it reports a terminal status or the
// timeout expires.
func poll[T any](cmd *cobra.Command, interval, timeout time.Duration, fetch func(ctx context.Context) (*T, string, error)) (*T, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		v, status, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil && last != "" {
				return nil, fmt.Errorf("still %s after %s", last, timeout)
			}
			return nil, err
		}
		if status != last {
			cmd.Printf("  … %s\n", status)
			last = status
		}
		if isTerminal(status) {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("still %s after %s", status, timeout)
		case <-ticker.C:
		}
	}
}

func waitForProposal(cmd *cobra.Command, client *Client, id int64, interval, timeout time.Duration) (*api.ProposalResponse, error) {
	return poll(cmd, interval, timeout, func(ctx context.Context) (*api.ProposalResponse, string, error) {
		p, err := client.GetProposal(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return p, p.Status, nil
	})
}

func waitForRun(cmd *cobra.Command, client *Client, id int64, interval, timeout time.Duration) (*api.RunResponse, error) {
	return poll(cmd, interval, timeout, func(ctx context.Context) (*api.RunResponse, string, error) {
		r, err := client.GetRun(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return r, r.Status, nil
	})
}
