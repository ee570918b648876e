// Package main is the entry point for the kafgate CLI.
package main

import (
	"os"

	"github.com/kafgate/kafgate/cmd/kafgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
