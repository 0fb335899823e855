// Package main is the entry point for testctl, the terminal client of the
// testplane API.
package main

import (
	"os"

	"testplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
