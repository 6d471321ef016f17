package stats

import (
	"fmt"
	"io"
)

// PrintSummary writes a human-readable report for sessionName to w: the
// "-p <name>" CLI path (§6), reading only the side index, never the
// save file.
func (s *Store) PrintSummary(w io.Writer, sessionName string) error {
	snap, err := s.Load(sessionName)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "session:     %s\n", snap.SessionName)
	fmt.Fprintf(w, "guid:        %d:%d\n", snap.Guid1, snap.Guid2)
	fmt.Fprintf(w, "state:       %s\n", snap.State)
	fmt.Fprintf(w, "generation:  %d\n", snap.GenerationID)
	fmt.Fprintf(w, "runtime:     %s\n", snap.Runtime)
	fmt.Fprintf(w, "total tests: %d\n", snap.TotalTests)
	fmt.Fprintf(w, "positives:   %d\n", snap.Positives)
	fmt.Fprintf(w, "negatives:   %d\n", snap.Negatives)
	fmt.Fprintf(w, "unfinished:  %d\n", snap.Unfinished)
	if snap.LastError != "" {
		fmt.Fprintf(w, "last error:  %s\n", snap.LastError)
	}

	history, err := s.GenerationHistory(sessionName)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\ngeneration history:")
	for _, rec := range history {
		status := "running"
		if !rec.EndedAt.IsZero() {
			status = rec.EndedAt.Sub(rec.StartedAt).String()
		}
		fmt.Fprintf(w, "  gen %-6d target=%-8d generated=%-8d duration=%s\n",
			rec.GenerationID, rec.TargetSize, rec.GeneratedCount, status)
	}
	return nil
}
