package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// runPrintStats implements §6's "-p <name>" (print stats only): it reads
// the sqlite side index internal/stats maintains and prints the named
// session's summary without touching the binary save file.
func runPrintStats(cliCtx *Context, name string) error {
	store, err := cliCtx.Stats()
	if err != nil {
		return withExitCode(fmt.Errorf("run: stats: %w", err), exitGenericError)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("=== %s ===\n", name)
	}
	if err := store.PrintSummary(os.Stdout, name); err != nil {
		return withExitCode(fmt.Errorf("run: print stats for %s: %w", name, err), exitGenericError)
	}
	return nil
}
