// Command mote runs the grammar-based fuzzing and delta-debugging engine
// (§1, §6). See internal/cli for the command tree.
package main

import (
	"fmt"
	"os"

	"mote/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
