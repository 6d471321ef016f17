// Package stats is the sqlite-backed side index behind the CLI's "-p"
// print-stats path (§6). It mirrors a running or finished session's
// counters into internal/storage so a reader never needs to load the
// binary save file (§4.2) just to print a summary; the save file remains
// the sole source of truth, this index is rebuildable from it at any
// time and is never consulted by the engine itself.
package stats

import (
	"fmt"
	"time"

	"mote/internal/storage"
)

// Store wraps the stats sqlite database.
type Store struct {
	db *storage.DB
}

// Open opens (creating if absent) the stats database at path.
func Open(path string) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the backing database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot is one session's counters at a point in time, the row shape
// of session_snapshots.
type Snapshot struct {
	SessionName  string
	Guid1, Guid2 uint64
	State        string
	GenerationID uint64
	TotalTests   int64
	Positives    int
	Negatives    int
	Unfinished   int64
	Runtime      time.Duration
	LastError    string
	UpdatedAt    time.Time
}

// Record upserts a session's current snapshot.
func (s *Store) Record(snap Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO session_snapshots
			(session_name, guid1, guid2, state, generation_id, total_tests, positives, negatives, unfinished, runtime_ns, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_name) DO UPDATE SET
			guid1=excluded.guid1, guid2=excluded.guid2, state=excluded.state,
			generation_id=excluded.generation_id, total_tests=excluded.total_tests,
			positives=excluded.positives, negatives=excluded.negatives,
			unfinished=excluded.unfinished, runtime_ns=excluded.runtime_ns,
			last_error=excluded.last_error, updated_at=excluded.updated_at
	`,
		snap.SessionName, snap.Guid1, snap.Guid2, snap.State, snap.GenerationID,
		snap.TotalTests, snap.Positives, snap.Negatives, snap.Unfinished,
		int64(snap.Runtime), snap.LastError, snap.UpdatedAt,
	)
	return err
}

// Load returns the last recorded snapshot for a session name.
func (s *Store) Load(sessionName string) (Snapshot, error) {
	var snap Snapshot
	var runtimeNS int64
	var updatedAt time.Time
	err := s.db.QueryRow(`
		SELECT session_name, guid1, guid2, state, generation_id, total_tests, positives, negatives, unfinished, runtime_ns, last_error, updated_at
		FROM session_snapshots WHERE session_name = ?
	`, sessionName).Scan(
		&snap.SessionName, &snap.Guid1, &snap.Guid2, &snap.State, &snap.GenerationID,
		&snap.TotalTests, &snap.Positives, &snap.Negatives, &snap.Unfinished,
		&runtimeNS, &snap.LastError, &updatedAt,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: load %s: %w", sessionName, err)
	}
	snap.Runtime = time.Duration(runtimeNS)
	snap.UpdatedAt = updatedAt
	return snap, nil
}

// RecordGenerationStart records a new generation's opening row.
func (s *Store) RecordGenerationStart(sessionName string, genID uint64, targetSize int64, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO generation_history (session_name, generation_id, target_size, generated_count, started_at, ended_at)
		VALUES (?, ?, ?, 0, ?, NULL)
	`, sessionName, genID, targetSize, startedAt)
	return err
}

// RecordGenerationEnd closes out a generation's row.
func (s *Store) RecordGenerationEnd(sessionName string, genID uint64, generatedCount int64, endedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE generation_history SET generated_count = ?, ended_at = ?
		WHERE session_name = ? AND generation_id = ?
	`, generatedCount, endedAt, sessionName, genID)
	return err
}

// GenerationHistory returns every recorded generation for a session,
// oldest first.
func (s *Store) GenerationHistory(sessionName string) ([]GenerationRecord, error) {
	rows, err := s.db.Query(`
		SELECT generation_id, target_size, generated_count, started_at, ended_at
		FROM generation_history WHERE session_name = ? ORDER BY generation_id ASC
	`, sessionName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GenerationRecord
	for rows.Next() {
		var rec GenerationRecord
		var endedAt *time.Time
		if err := rows.Scan(&rec.GenerationID, &rec.TargetSize, &rec.GeneratedCount, &rec.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		if endedAt != nil {
			rec.EndedAt = *endedAt
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GenerationRecord is one generation_history row.
type GenerationRecord struct {
	GenerationID   uint64
	TargetSize     int64
	GeneratedCount int64
	StartedAt      time.Time
	EndedAt        time.Time
}
