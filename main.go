// Command sleepsense analyzes overnight recordings.
//
// Usage:
//
//	sleepsense analyze <file.pcm> [--sample-rate N] [--context key=value] [--json]
//	sleepsense history [--limit N] [--run ID] [--delete ID]
//	sleepsense config
package main

import (
	"fmt"
	"os"

	"github.com/maastricht-university/sleepsense/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
