//go:build !linux

package exechandler

import "fmt"

// readRSS has no portable implementation outside /proc; the memory
// watchdog is a no-op on other platforms (MemoryLimitBytes simply never
// triggers ExitMemory there).
func readRSS(pid int) (int64, error) {
	return 0, fmt.Errorf("exechandler: RSS reporting unsupported on this platform")
}
