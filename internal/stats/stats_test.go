package stats

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndLoad(t *testing.T) {
	store := openTestStore(t)

	snap := Snapshot{
		SessionName:  "fuzz-run",
		Guid1:        111,
		Guid2:        222,
		State:        "running",
		GenerationID: 3,
		TotalTests:   1000,
		Positives:    12,
		Negatives:    4,
		Unfinished:   984,
		Runtime:      90 * time.Second,
		UpdatedAt:    time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Record(snap))

	got, err := store.Load("fuzz-run")
	require.NoError(t, err)
	require.Equal(t, snap.Guid1, got.Guid1)
	require.Equal(t, snap.TotalTests, got.TotalTests)
	require.Equal(t, snap.Positives, got.Positives)
	require.Equal(t, snap.Runtime, got.Runtime)
}

func TestRecordUpsertsExistingSession(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Record(Snapshot{SessionName: "s", TotalTests: 1}))
	require.NoError(t, store.Record(Snapshot{SessionName: "s", TotalTests: 2}))

	got, err := store.Load("s")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.TotalTests)
}

func TestGenerationHistory(t *testing.T) {
	store := openTestStore(t)
	start := time.Now().Truncate(time.Second)

	require.NoError(t, store.RecordGenerationStart("s", 1, 1000, start))
	require.NoError(t, store.RecordGenerationEnd("s", 1, 950, start.Add(time.Minute)))
	require.NoError(t, store.RecordGenerationStart("s", 2, 1200, start.Add(time.Minute)))

	history, err := store.GenerationHistory("s")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, uint64(1), history[0].GenerationID)
	require.Equal(t, int64(950), history[0].GeneratedCount)
	require.True(t, history[1].EndedAt.IsZero())
}

func TestPrintSummary(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Record(Snapshot{
		SessionName: "s", State: "running", TotalTests: 10, Positives: 1, Negatives: 2,
	}))
	require.NoError(t, store.RecordGenerationStart("s", 1, 100, time.Now()))

	var buf bytes.Buffer
	require.NoError(t, store.PrintSummary(&buf, "s"))
	out := buf.String()
	require.Contains(t, out, "session:     s")
	require.Contains(t, out, "generation history:")
}

func TestPrintSummary_UnknownSession(t *testing.T) {
	store := openTestStore(t)
	var buf bytes.Buffer
	require.Error(t, store.PrintSummary(&buf, "missing"))
}
