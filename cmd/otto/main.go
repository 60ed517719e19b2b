// Package main provides the entry point for the otto CLI.
package main

import (
	"os"

	"github.com/JB5579/Otto-Match-V2-sub001/cmd/otto/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
