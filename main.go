// Package main is the entry point for the blockwatch client.
package main

import (
	"fmt"
	"os"

	"github.com/jonesrussell/blockwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
