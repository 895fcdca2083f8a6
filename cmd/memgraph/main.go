// Package main is the entry point for the memgraph CLI.
//
// All logic lives in the commands package.
package main

import (
	"fmt"
	"os"

	"github.com/JNZader/memgraph/cmd/memgraph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
